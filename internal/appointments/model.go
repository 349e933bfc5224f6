// Package appointments books and tracks marketplace appointments through the
// Clinicorp integration.
package appointments

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Appointment is a locally persisted booking record. The Clinicorp side is
// the source of truth for schedule state; this record tracks what the
// marketplace requested and the upstream outcome.
type Appointment struct {
	ID           string    `json:"id"`
	ClinicID     string    `json:"clinic_id"`
	PatientID    string    `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	PatientCPF   string    `json:"patient_cpf,omitempty"`
	PatientPhone string    `json:"patient_phone,omitempty"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Professional string    `json:"professional,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
