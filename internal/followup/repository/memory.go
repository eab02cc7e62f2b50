package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"leadflow_backend/internal/followup/domain"
)

// MemoryStore keeps collections in process. Used by tests and local runs.
type MemoryStore struct {
	mu        sync.Mutex
	companies map[uuid.UUID]*companyState
}

type companyState struct {
	mu   sync.Mutex
	data Collections
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{companies: make(map[uuid.UUID]*companyState)}
}

func (s *MemoryStore) company(companyID uuid.UUID) *companyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok {
		c = &companyState{}
		s.companies[companyID] = c
	}
	return c
}

func cloneCollections(c Collections) Collections {
	return Collections{
		Leads:     slices.Clone(c.Leads),
		Rules:     slices.Clone(c.Rules),
		Reminders: slices.Clone(c.Reminders),
	}
}

func (s *MemoryStore) read(ctx context.Context, companyID uuid.UUID) (Collections, error) {
	if err := ctx.Err(); err != nil {
		return Collections{}, err
	}
	if companyID == uuid.Nil {
		return Collections{}, ErrNoCompany
	}
	c := s.company(companyID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneCollections(c.data), nil
}

func (s *MemoryStore) write(ctx context.Context, companyID uuid.UUID, apply func(*Collections)) error {
	return s.Update(ctx, companyID, func(c *Collections) error {
		apply(c)
		return nil
	})
}

// Snapshot reads all collections of a company.
func (s *MemoryStore) Snapshot(ctx context.Context, companyID uuid.UUID) (Collections, error) {
	return s.read(ctx, companyID)
}

func (s *MemoryStore) Leads(ctx context.Context, companyID uuid.UUID) ([]domain.Lead, error) {
	c, err := s.read(ctx, companyID)
	return c.Leads, err
}

func (s *MemoryStore) SetLeads(ctx context.Context, companyID uuid.UUID, leads []domain.Lead) error {
	return s.write(ctx, companyID, func(c *Collections) { c.Leads = slices.Clone(leads) })
}

func (s *MemoryStore) Rules(ctx context.Context, companyID uuid.UUID) ([]domain.FollowUpRule, error) {
	c, err := s.read(ctx, companyID)
	return c.Rules, err
}

func (s *MemoryStore) SetRules(ctx context.Context, companyID uuid.UUID, rules []domain.FollowUpRule) error {
	return s.write(ctx, companyID, func(c *Collections) { c.Rules = slices.Clone(rules) })
}

func (s *MemoryStore) Reminders(ctx context.Context, companyID uuid.UUID) ([]domain.Reminder, error) {
	c, err := s.read(ctx, companyID)
	return c.Reminders, err
}

func (s *MemoryStore) SetReminders(ctx context.Context, companyID uuid.UUID, reminders []domain.Reminder) error {
	return s.write(ctx, companyID, func(c *Collections) { c.Reminders = slices.Clone(reminders) })
}

// Update runs fn on a private copy and commits it only on success.
func (s *MemoryStore) Update(ctx context.Context, companyID uuid.UUID, fn func(*Collections) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if companyID == uuid.Nil {
		return ErrNoCompany
	}
	c := s.company(companyID)
	c.mu.Lock()
	defer c.mu.Unlock()

	working := cloneCollections(c.data)
	if err := fn(&working); err != nil {
		return err
	}
	c.data = working
	return nil
}

// Companies lists every company the store has seen.
func (s *MemoryStore) Companies(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(s.companies))
	for id := range s.companies {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	return ids, nil
}

var _ Store = (*MemoryStore)(nil)
