package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
)

func TestMemoryStoreUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	companyID := uuid.New()

	if err := store.SetRules(ctx, companyID, []domain.FollowUpRule{{ID: uuid.New(), Name: "r"}}); err != nil {
		t.Fatalf("set rules: %v", err)
	}

	boom := errors.New("boom")
	err := store.Update(ctx, companyID, func(c *Collections) error {
		c.Rules[0].Triggered = 5
		c.Reminders = append(c.Reminders, domain.Reminder{ID: uuid.New()})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	snap, err := store.Snapshot(ctx, companyID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Rules[0].Triggered != 0 || len(snap.Reminders) != 0 {
		t.Fatalf("failed update leaked state: %+v", snap)
	}
}

func TestMemoryStoreSerialisesUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	companyID := uuid.New()
	_ = store.SetRules(ctx, companyID, []domain.FollowUpRule{{ID: uuid.New()}})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, companyID, func(c *Collections) error {
				c.Rules[0].Triggered++
				return nil
			})
		}()
	}
	wg.Wait()

	rules, _ := store.Rules(ctx, companyID)
	if rules[0].Triggered != 50 {
		t.Fatalf("expected 50 increments, got %d", rules[0].Triggered)
	}
}

func TestMemoryStoreRejectsNilCompany(t *testing.T) {
	if _, err := NewMemoryStore().Leads(context.Background(), uuid.Nil); !errors.Is(err, ErrNoCompany) {
		t.Fatalf("expected ErrNoCompany, got %v", err)
	}
}

func TestMemoryStoreReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	companyID := uuid.New()
	_ = store.SetLeads(ctx, companyID, []domain.Lead{{ID: uuid.New(), Name: "a"}})

	leads, _ := store.Leads(ctx, companyID)
	leads[0].Name = "mutated"

	again, _ := store.Leads(ctx, companyID)
	if again[0].Name != "a" {
		t.Fatalf("store state changed through a read copy")
	}
	companies, _ := store.Companies(ctx)
	if len(companies) != 1 || companies[0] != companyID {
		t.Fatalf("unexpected companies %v", companies)
	}
}
