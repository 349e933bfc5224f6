// Package credit manages dental credit requests attached to marketplace
// treatments.
package credit

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a credit request.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid credit status transition")

// allowedTransitions is the closed set of legal status moves. Terminal
// states (approved, denied) have no outgoing edges.
var allowedTransitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusInReview, StatusDenied},
	StatusInReview:  {StatusApproved, StatusDenied},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is a dental credit application.
type Request struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	ClinicID     string    `json:"clinic_id"`
	AmountCents  int64     `json:"amount_cents"`
	Installments int       `json:"installments"`
	PatientName  string    `json:"patient_name"`
	PatientCPF   string    `json:"patient_cpf,omitempty"`
	Status       Status    `json:"status"`
	DecisionNote string    `json:"decision_note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
