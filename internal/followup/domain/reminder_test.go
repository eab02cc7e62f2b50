package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTransitionTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:   {StatusSent, StatusSnoozed, StatusCancelled},
		StatusSent:      {StatusSnoozed, StatusCompleted, StatusEscalated, StatusCancelled},
		StatusSnoozed:   {StatusPending, StatusCancelled},
		StatusEscalated: {StatusCompleted, StatusCancelled},
	}
	all := []Status{StatusPending, StatusSent, StatusCompleted, StatusSnoozed, StatusEscalated, StatusCancelled}

	for _, from := range all {
		want := map[Status]bool{}
		for _, to := range allowed[from] {
			want[to] = true
		}
		for _, to := range all {
			err := ValidateTransition(from, to)
			if want[to] && err != nil {
				t.Fatalf("%s -> %s should be allowed: %v", from, to, err)
			}
			if !want[to] && !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s should be rejected", from, to)
			}
		}
	}
}

func TestStatusClassification(t *testing.T) {
	if !StatusCompleted.IsTerminal() || !StatusCancelled.IsTerminal() || StatusSnoozed.IsTerminal() {
		t.Fatalf("unexpected terminal classification")
	}
	if !StatusEscalated.IsOpen() || StatusSnoozed.IsOpen() || StatusCompleted.IsOpen() {
		t.Fatalf("unexpected open classification")
	}
}

func TestEffectiveness(t *testing.T) {
	tests := []struct{ triggered, responded, want int }{
		{10, 4, 40},
		{0, 0, 0},
		{3, 2, 67},
		{0, 1, 100},
	}
	for _, tt := range tests {
		if got := Effectiveness(tt.triggered, tt.responded); got != tt.want {
			t.Fatalf("Effectiveness(%d,%d) = %d, want %d", tt.triggered, tt.responded, got, tt.want)
		}
	}
}

func TestRepeatInterval(t *testing.T) {
	hours := 36
	tests := []struct {
		rule   FollowUpRule
		want   time.Duration
		wantOK bool
	}{
		{FollowUpRule{Reminder: ReminderConfig{Frequency: FrequencyOnce}}, 0, false},
		{FollowUpRule{Reminder: ReminderConfig{Frequency: FrequencyDaily}}, 24 * time.Hour, true},
		{FollowUpRule{Reminder: ReminderConfig{Frequency: FrequencyWeekly}}, 168 * time.Hour, true},
		{FollowUpRule{Reminder: ReminderConfig{Frequency: FrequencyCustom, CustomIntervalHours: &hours}}, 36 * time.Hour, true},
	}
	for _, tt := range tests {
		got, ok := tt.rule.RepeatInterval()
		if got != tt.want || ok != tt.wantOK {
			t.Fatalf("frequency %s: got %v/%v", tt.rule.Reminder.Frequency, got, ok)
		}
	}
}
