// Package clinics manages marketplace clinic profiles.
package clinics

import "time"

// Clinic is a dental clinic profile listed on the marketplace.
type Clinic struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Specialties []string  `json:"specialties,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Clinicorp integration surface. Token material never leaves the
	// credentials store; only the linkage flags are exposed here.
	ClinicorpEnabled      bool   `json:"clinicorp_enabled"`
	ClinicorpSubscriberID string `json:"clinicorp_subscriber_id,omitempty"`
	OnlineSlug            string `json:"online_slug,omitempty"`
}
