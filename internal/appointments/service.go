package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/odontomarket/dental-marketplace-platform/internal/clinicorp"
	"github.com/odontomarket/dental-marketplace-platform/pkg/logging"
)

// ProxyExecutor is the slice of the Clinicorp proxy the booking service uses.
type ProxyExecutor interface {
	Execute(ctx context.Context, userID string, req clinicorp.Request) (*clinicorp.Response, *clinicorp.Error)
}

// Service books appointments against Clinicorp and persists local records.
type Service struct {
	repo   Repository
	proxy  ProxyExecutor
	logger *logging.Logger
}

func NewService(repo Repository, proxy ProxyExecutor, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, proxy: proxy, logger: logger}
}

// BookingInput is the data needed to book an appointment.
type BookingInput struct {
	ClinicID     string
	PatientName  string
	PatientCPF   string
	PatientPhone string
	Date         string
	Time         string
	Professional string
}

// Book checks availability upstream, creates the appointment in Clinicorp and
// persists a confirmed local record. The local record is only written after
// the upstream create succeeds.
func (s *Service) Book(ctx context.Context, userID string, in BookingInput) (*Appointment, *clinicorp.Error) {
	avail, perr := s.proxy.Execute(ctx, userID, clinicorp.Request{
		Path:     "/appointment/get_avaliable_times",
		Method:   http.MethodPost,
		ClinicID: in.ClinicID,
		Body: map[string]any{
			"date":         in.Date,
			"professional": in.Professional,
		},
	})
	if perr != nil {
		return nil, perr
	}
	if avail.Success && !payloadContainsTime(avail.Data, in.Time) {
		return nil, clinicorp.NewError(clinicorp.CodeRequestFailed, http.StatusConflict,
			"Horário solicitado não está mais disponível")
	}

	created, perr := s.proxy.Execute(ctx, userID, clinicorp.Request{
		Path:     "/appointment/create_appointment_by_api",
		Method:   http.MethodPost,
		ClinicID: in.ClinicID,
		Body: map[string]any{
			"patient": map[string]any{
				"name":         in.PatientName,
				"cpf":          in.PatientCPF,
				"mobile_phone": in.PatientPhone,
			},
			"date":         in.Date,
			"time":         in.Time,
			"professional": in.Professional,
		},
	})
	if perr != nil {
		return nil, perr
	}
	if !created.Success {
		s.logger.Warn("upstream rejected appointment create",
			"clinic_id", in.ClinicID, "status", created.Status)
		return nil, clinicorp.NewError(clinicorp.CodeRequestFailed, created.Status,
			"Não foi possível criar o agendamento")
	}

	a := &Appointment{
		ClinicID:     in.ClinicID,
		PatientID:    userID,
		PatientName:  in.PatientName,
		PatientCPF:   in.PatientCPF,
		PatientPhone: in.PatientPhone,
		Date:         in.Date,
		Time:         in.Time,
		Professional: in.Professional,
		Status:       StatusConfirmed,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		s.logger.Error("failed to persist appointment", "clinic_id", in.ClinicID, "error", err)
		return nil, clinicorp.NewError(clinicorp.CodeInternal, http.StatusInternalServerError,
			"Internal server error")
	}
	return a, nil
}

// Cancel marks a local appointment cancelled. Only the booking patient may
// cancel, and only from pending or confirmed.
func (s *Service) Cancel(ctx context.Context, userID, appointmentID string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if a.PatientID != userID {
		return nil, ErrNotOwner
	}
	if a.Status == StatusCancelled {
		return a, nil
	}
	if err := s.repo.UpdateStatus(ctx, appointmentID, StatusCancelled); err != nil {
		return nil, err
	}
	a.Status = StatusCancelled
	return a, nil
}

// payloadContainsTime reports whether the requested time appears anywhere in
// the upstream availability payload. Clinicorp varies the shape per account,
// so the scan is structural rather than schema-bound.
func payloadContainsTime(data any, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return true
	}
	switch v := data.(type) {
	case string:
		return strings.HasPrefix(strings.TrimSpace(v), want)
	case json.Number:
		return v.String() == want
	case []any:
		for _, item := range v {
			if payloadContainsTime(item, want) {
				return true
			}
		}
	case map[string]any:
		for _, item := range v {
			if payloadContainsTime(item, want) {
				return true
			}
		}
	}
	return false
}
