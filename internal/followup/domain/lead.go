// Package domain provides the core types and pure rules of the follow-up
// bounded context: leads as seen by the engine, aging buckets, follow-up
// rules and the reminder state machine.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadStatus is the sales status of a lead.
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusQualified   LeadStatus = "qualified"
	LeadStatusUnqualified LeadStatus = "unqualified"
)

// Rating is the temperature assigned to a lead.
type Rating string

const (
	RatingHot  Rating = "hot"
	RatingWarm Rating = "warm"
	RatingCold Rating = "cold"
)

// Lead is the read-only snapshot of a lead the engine evaluates.
// Leads are owned by the CRM; the engine never mutates them.
type Lead struct {
	ID               uuid.UUID  `json:"id"`
	CompanyID        uuid.UUID  `json:"companyId"`
	Name             string     `json:"name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	LastContactAt    *time.Time `json:"lastContactAt,omitempty"`
	NextFollowUpAt   *time.Time `json:"nextFollowUpAt,omitempty"`
	Status           LeadStatus `json:"status"`
	Rating           Rating     `json:"rating"`
	Score            int        `json:"score"`
	AssigneeID       string     `json:"assigneeId,omitempty"`
	RecentActivities []string   `json:"recentActivities,omitempty"`
}

// IsValidLeadStatus reports whether s is a known lead status.
func IsValidLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusUnqualified:
		return true
	}
	return false
}

// IsValidRating reports whether r is a known rating.
func IsValidRating(r Rating) bool {
	switch r {
	case RatingHot, RatingWarm, RatingCold:
		return true
	}
	return false
}
