package domain

import (
	"errors"
	"fmt"
	"time"
)

// Urgency ranks how pressing a follow-up is.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow:      1,
	UrgencyMedium:   2,
	UrgencyHigh:     3,
	UrgencyCritical: 4,
}

// Rank orders urgencies; unknown values rank 0.
func (u Urgency) Rank() int {
	return urgencyRank[u]
}

// AgingBucket is an inclusive day range of days since last contact.
// A nil MaxDays means the range is open ended.
type AgingBucket struct {
	Name    string  `json:"name" yaml:"name"`
	MinDays int     `json:"minDays" yaml:"minDays"`
	MaxDays *int    `json:"maxDays,omitempty" yaml:"maxDays,omitempty"`
	Urgency Urgency `json:"urgency" yaml:"urgency"`
}

// Contains reports whether days falls inside the bucket.
func (b AgingBucket) Contains(days int) bool {
	if days < b.MinDays {
		return false
	}
	return b.MaxDays == nil || days <= *b.MaxDays
}

// Classification is the derived aging view of a lead at a point in time.
type Classification struct {
	Bucket           AgingBucket `json:"bucket"`
	DaysSinceContact int         `json:"daysSinceContact"`
	LeadAgeDays      int         `json:"leadAgeDays"`
	FollowUpOverdue  bool        `json:"followUpOverdue"`
}

var ErrInvalidBuckets = errors.New("invalid aging buckets")

func intPtr(v int) *int { return &v }

// DefaultBuckets returns the stock bucket table.
func DefaultBuckets() []AgingBucket {
	return []AgingBucket{
		{Name: "fresh", MinDays: 0, MaxDays: intPtr(2), Urgency: UrgencyLow},
		{Name: "active", MinDays: 3, MaxDays: intPtr(7), Urgency: UrgencyMedium},
		{Name: "cooling", MinDays: 8, MaxDays: intPtr(14), Urgency: UrgencyHigh},
		{Name: "at_risk", MinDays: 15, MaxDays: intPtr(30), Urgency: UrgencyHigh},
		{Name: "dormant", MinDays: 31, MaxDays: nil, Urgency: UrgencyCritical},
	}
}

// ValidateBuckets checks that buckets are sorted, start at day 0, are
// contiguous and end with an open range.
func ValidateBuckets(buckets []AgingBucket) error {
	if len(buckets) == 0 {
		return fmt.Errorf("%w: table is empty", ErrInvalidBuckets)
	}
	if buckets[0].MinDays != 0 {
		return fmt.Errorf("%w: first bucket must start at day 0", ErrInvalidBuckets)
	}
	for i, b := range buckets {
		if b.Name == "" {
			return fmt.Errorf("%w: bucket %d has no name", ErrInvalidBuckets, i)
		}
		if b.Urgency.Rank() == 0 {
			return fmt.Errorf("%w: bucket %q has unknown urgency %q", ErrInvalidBuckets, b.Name, b.Urgency)
		}
		last := i == len(buckets)-1
		if last {
			if b.MaxDays != nil {
				return fmt.Errorf("%w: last bucket %q must be open ended", ErrInvalidBuckets, b.Name)
			}
			continue
		}
		if b.MaxDays == nil {
			return fmt.Errorf("%w: only the last bucket may be open ended, got %q", ErrInvalidBuckets, b.Name)
		}
		if *b.MaxDays < b.MinDays {
			return fmt.Errorf("%w: bucket %q ends before it starts", ErrInvalidBuckets, b.Name)
		}
		if next := buckets[i+1]; next.MinDays != *b.MaxDays+1 {
			return fmt.Errorf("%w: gap or overlap between %q and %q", ErrInvalidBuckets, b.Name, next.Name)
		}
	}
	return nil
}

// DaysBetween returns whole elapsed days from a to b, never negative.
func DaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Classify maps a lead to its aging bucket. A missing or malformed last
// contact (zero, in the future, or before creation) falls back to the
// creation date. An empty table classifies against DefaultBuckets.
func Classify(lead Lead, buckets []AgingBucket, now time.Time) Classification {
	if len(buckets) == 0 {
		buckets = DefaultBuckets()
	}

	age := 0
	if !lead.CreatedAt.IsZero() {
		age = DaysBetween(lead.CreatedAt, now)
	}

	sinceContact := age
	if contact := lead.LastContactAt; contact != nil && isWellFormedContact(*contact, lead.CreatedAt, now) {
		sinceContact = DaysBetween(*contact, now)
	}

	return Classification{
		Bucket:           bucketFor(buckets, sinceContact),
		DaysSinceContact: sinceContact,
		LeadAgeDays:      age,
		FollowUpOverdue:  lead.NextFollowUpAt != nil && now.After(*lead.NextFollowUpAt),
	}
}

func isWellFormedContact(contact, created, now time.Time) bool {
	if contact.IsZero() || contact.After(now) {
		return false
	}
	return created.IsZero() || !contact.Before(created)
}

func bucketFor(buckets []AgingBucket, days int) AgingBucket {
	for _, b := range buckets {
		if b.Contains(days) {
			return b
		}
	}
	worst := buckets[0]
	for _, b := range buckets[1:] {
		if b.Urgency.Rank() >= worst.Urgency.Rank() {
			worst = b
		}
	}
	return worst
}
