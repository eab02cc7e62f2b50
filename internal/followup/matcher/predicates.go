package matcher

import (
	"slices"

	"leadflow_backend/internal/followup/domain"
)

// Subject is what predicates are evaluated against.
type Subject struct {
	Lead           domain.Lead
	Classification domain.Classification
}

// Predicate is one populated rule condition.
type Predicate struct {
	Name  string
	Holds func(Subject) bool
}

// Compile turns the populated fields of c into predicates. Absent fields
// produce no predicate, so an empty condition set always matches.
func Compile(c domain.Conditions) []Predicate {
	var preds []Predicate

	if c.MinLeadAgeDays != nil {
		n := *c.MinLeadAgeDays
		preds = append(preds, Predicate{Name: "minLeadAgeDays", Holds: func(s Subject) bool {
			return s.Classification.LeadAgeDays >= n
		}})
	}
	if c.MinContactGapDays != nil {
		n := *c.MinContactGapDays
		preds = append(preds, Predicate{Name: "minContactGapDays", Holds: func(s Subject) bool {
			return s.Classification.DaysSinceContact >= n
		}})
	}
	if len(c.Statuses) > 0 {
		statuses := slices.Clone(c.Statuses)
		preds = append(preds, Predicate{Name: "statuses", Holds: func(s Subject) bool {
			return slices.Contains(statuses, s.Lead.Status)
		}})
	}
	if len(c.Ratings) > 0 {
		ratings := slices.Clone(c.Ratings)
		preds = append(preds, Predicate{Name: "ratings", Holds: func(s Subject) bool {
			return slices.Contains(ratings, s.Lead.Rating)
		}})
	}
	if c.ScoreThreshold != nil {
		n := *c.ScoreThreshold
		preds = append(preds, Predicate{Name: "scoreThreshold", Holds: func(s Subject) bool {
			return s.Lead.Score >= n
		}})
	}
	if len(c.ActivityTypes) > 0 {
		wanted := make(map[string]struct{}, len(c.ActivityTypes))
		for _, a := range c.ActivityTypes {
			wanted[a] = struct{}{}
		}
		preds = append(preds, Predicate{Name: "activityTypes", Holds: func(s Subject) bool {
			for _, a := range s.Lead.RecentActivities {
				if _, ok := wanted[a]; ok {
					return true
				}
			}
			return false
		}})
	}

	return preds
}
