package domain

import "github.com/google/uuid"

// Contact carries every address a reminder may be delivered to.
type Contact struct {
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	AssigneeID string `json:"assigneeId,omitempty"`
}

// ContactOf returns the delivery addresses of a lead.
func ContactOf(lead Lead) Contact {
	return Contact{Email: lead.Email, Phone: lead.Phone, AssigneeID: lead.AssigneeID}
}

// RecipientFor picks the address used by a single-channel method.
// Notifications and tasks go to the assignee. MethodAll has no single
// recipient and returns "".
func (c Contact) RecipientFor(method Method) string {
	switch method {
	case MethodEmail:
		return c.Email
	case MethodSMS:
		return c.Phone
	case MethodNotification, MethodTask:
		return c.AssigneeID
	default:
		return ""
	}
}

// Message is one outgoing reminder delivery.
type Message struct {
	CompanyID  uuid.UUID
	ReminderID uuid.UUID
	LeadID     uuid.UUID
	Method     Method
	Recipient  string
	Contact    Contact
	Subject    string
	Body       string
}
