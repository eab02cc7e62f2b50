// Package analytics derives follow-up metrics from stored rules and
// reminders. Nothing here is stored; every view is recomputed on read.
package analytics

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
)

// RuleStats is the effectiveness view of one rule.
type RuleStats struct {
	RuleID        uuid.UUID `json:"ruleId"`
	Name          string    `json:"name"`
	Active        bool      `json:"active"`
	AIEnabled     bool      `json:"aiEnabled"`
	Triggered     int       `json:"triggered"`
	Responded     int       `json:"responded"`
	Converted     int       `json:"converted"`
	Effectiveness int       `json:"effectiveness"`
}

// Summary is the system-wide dashboard view.
type Summary struct {
	TotalReminders int                   `json:"totalReminders"`
	Pending        int                   `json:"pending"`
	SentToday      int                   `json:"sentToday"`
	ResponseRate   int                   `json:"responseRate"`
	ActiveRules    int                   `json:"activeRules"`
	AIEnabledRules int                   `json:"aiEnabledRules"`
	Escalated      int                   `json:"escalated"`
	Degraded       int                   `json:"degraded"`
	ByStatus       map[domain.Status]int `json:"byStatus"`
	GeneratedAt    time.Time             `json:"generatedAt"`
}

// RuleEffectiveness returns per-rule stats in rule order.
func RuleEffectiveness(rules []domain.FollowUpRule, reminders []domain.Reminder) []RuleStats {
	type counts struct{ responded, converted int }
	byRule := make(map[uuid.UUID]*counts, len(rules))
	for _, r := range reminders {
		c, ok := byRule[r.RuleID]
		if !ok {
			c = &counts{}
			byRule[r.RuleID] = c
		}
		if r.Interaction.Responded {
			c.responded++
		}
		if r.Converted {
			c.converted++
		}
	}

	out := make([]RuleStats, 0, len(rules))
	for _, rule := range rules {
		stats := RuleStats{
			RuleID:    rule.ID,
			Name:      rule.Name,
			Active:    rule.Active,
			AIEnabled: rule.Reminder.AIEnabled,
			Triggered: rule.Triggered,
		}
		if c, ok := byRule[rule.ID]; ok {
			stats.Responded = c.responded
			stats.Converted = c.converted
		}
		stats.Effectiveness = domain.Effectiveness(stats.Triggered, stats.Responded)
		out = append(out, stats)
	}
	return out
}

// Summarize computes the dashboard summary. "Today" is the calendar day of
// now in loc.
func Summarize(rules []domain.FollowUpRule, reminders []domain.Reminder, now time.Time, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	dayStart, dayEnd := localDay(now, loc)

	s := Summary{
		TotalReminders: len(reminders),
		ByStatus:       make(map[domain.Status]int),
		GeneratedAt:    now,
	}

	everSent, responded := 0, 0
	for _, r := range reminders {
		s.ByStatus[r.Status]++
		if r.Status == domain.StatusPending {
			s.Pending++
		}
		if r.EscalationLevel > 0 {
			s.Escalated++
		}
		if r.Degraded {
			s.Degraded++
		}
		if r.SentAt != nil {
			everSent++
			if !r.SentAt.Before(dayStart) && r.SentAt.Before(dayEnd) {
				s.SentToday++
			}
		}
		if r.Interaction.Responded {
			responded++
		}
	}
	s.ResponseRate = domain.Effectiveness(everSent, responded)

	for _, rule := range rules {
		if rule.Active {
			s.ActiveRules++
		}
		if rule.Reminder.AIEnabled {
			s.AIEnabledRules++
		}
	}
	return s
}

func localDay(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// BucketCount is the number of leads in one aging bucket.
type BucketCount struct {
	Bucket domain.AgingBucket `json:"bucket"`
	Count  int                `json:"count"`
}

// LeadAging is one row of the aging report.
type LeadAging struct {
	LeadID         uuid.UUID             `json:"leadId"`
	Name           string                `json:"name"`
	Status         domain.LeadStatus     `json:"status"`
	Rating         domain.Rating         `json:"rating"`
	Classification domain.Classification `json:"classification"`
}

// AgingReport is the aging dashboard view.
type AgingReport struct {
	Buckets []BucketCount `json:"buckets"`
	Overdue int           `json:"overdue"`
	Leads   []LeadAging   `json:"leads"`
}

// Aging classifies every lead. Leads are ordered by days since contact,
// longest first.
func Aging(leads []domain.Lead, buckets []domain.AgingBucket, now time.Time) AgingReport {
	if len(buckets) == 0 {
		buckets = domain.DefaultBuckets()
	}
	report := AgingReport{
		Buckets: make([]BucketCount, len(buckets)),
		Leads:   make([]LeadAging, 0, len(leads)),
	}
	index := make(map[string]int, len(buckets))
	for i, b := range buckets {
		report.Buckets[i] = BucketCount{Bucket: b}
		index[b.Name] = i
	}

	for _, lead := range leads {
		c := domain.Classify(lead, buckets, now)
		report.Buckets[index[c.Bucket.Name]].Count++
		if c.FollowUpOverdue {
			report.Overdue++
		}
		report.Leads = append(report.Leads, LeadAging{
			LeadID:         lead.ID,
			Name:           lead.Name,
			Status:         lead.Status,
			Rating:         lead.Rating,
			Classification: c,
		})
	}

	sort.SliceStable(report.Leads, func(i, j int) bool {
		return report.Leads[i].Classification.DaysSinceContact > report.Leads[j].Classification.DaysSinceContact
	})
	return report
}
