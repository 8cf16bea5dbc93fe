package model

import (
	"strings"
	"time"
)

type ComplaintStatus string

const (
	ComplaintPending    ComplaintStatus = "Pending"
	ComplaintInProgress ComplaintStatus = "In Progress"
	ComplaintResolved   ComplaintStatus = "Resolved"
	ComplaintRejected   ComplaintStatus = "Rejected"
)

func ParseComplaintStatus(raw string) (ComplaintStatus, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range []ComplaintStatus{ComplaintPending, ComplaintInProgress, ComplaintResolved, ComplaintRejected} {
		if strings.EqualFold(string(s), trimmed) {
			return s, true
		}
	}
	return "", false
}

type ComplaintResponse struct {
	Text string    `json:"text" bson:"text"`
	From string    `json:"from" bson:"from"`
	Date time.Time `json:"date" bson:"date"`
}

type ComplaintHistory struct {
	Action    string    `json:"action" bson:"action"`
	Notes     string    `json:"notes,omitempty" bson:"notes"`
	UpdatedBy string    `json:"updatedBy" bson:"updated_by"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

type Complaint struct {
	ID             string              `json:"id"`
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Category       Category            `json:"category"`
	Location       string              `json:"location,omitempty"`
	CitizenID      string              `json:"citizen"`
	AssignedAgency string              `json:"assignedAgency,omitempty"`
	Status         ComplaintStatus     `json:"status"`
	Responses      []ComplaintResponse `json:"responses"`
	History        []ComplaintHistory  `json:"history"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// ComplaintFilter narrows a listing. Ownership fields are set by the authorization
// gate before the query runs; Status and Category come from the caller.
type ComplaintFilter struct {
	CitizenID      string
	AssignedAgency string
	Status         ComplaintStatus
	Category       Category
}

type ComplaintList struct {
	Items []Complaint `json:"items"`
}
