package clinics

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clinicRows(mock pgxmock.PgxPoolIface, clinics ...Clinic) *pgxmock.Rows {
	rows := mock.NewRows([]string{
		"id", "owner_id", "name", "slug", "city", "state", "phone", "specialties",
		"clinicorp_enabled", "clinicorp_subscriber_id", "online_slug", "created_at", "updated_at",
	})
	for _, c := range clinics {
		rows.AddRow(c.ID, c.OwnerID, c.Name, c.Slug, c.City, c.State, c.Phone, c.Specialties,
			c.ClinicorpEnabled, c.ClinicorpSubscriberID, c.OnlineSlug, c.CreatedAt, c.UpdatedAt)
	}
	return rows
}

func TestGetByIDScansRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	want := Clinic{
		ID: "c1", OwnerID: "o1", Name: "Sorriso", Slug: "sorriso",
		City: "São Paulo", State: "SP", Specialties: []string{"ortodontia"},
		ClinicorpEnabled: true, ClinicorpSubscriberID: "sub-9",
		CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectQuery(`(?s)SELECT .+FROM clinics WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(clinicRows(mock, want))

	repo := NewPgRepository(mock)
	got, err := repo.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, &want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`(?s)SELECT .+FROM clinics WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(clinicRows(mock))

	repo := NewPgRepository(mock)
	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAppliesFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`(?s)SELECT .+FROM clinics WHERE LOWER\(city\) = LOWER\(\$1\) AND LOWER\(state\) = LOWER\(\$2\) ORDER BY name`).
		WithArgs("Campinas", "SP").
		WillReturnRows(clinicRows(mock, Clinic{ID: "c1", Name: "Bela Vista", City: "Campinas", State: "SP"}))

	repo := NewPgRepository(mock)
	got, err := repo.List(context.Background(), "Campinas", "SP")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bela Vista", got[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO clinics`).
		WithArgs(pgxmock.AnyArg(), "o1", "Sorriso", "sorriso", "", "", "", []string(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewPgRepository(mock)
	c := &Clinic{OwnerID: "o1", Name: "Sorriso", Slug: "sorriso"}
	require.NoError(t, repo.Create(context.Background(), c))
	assert.NotEmpty(t, c.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingClinic(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE clinics`).
		WithArgs("ghost", "Name", "", "", "", []string(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPgRepository(mock)
	err = repo.Update(context.Background(), &Clinic{ID: "ghost", Name: "Name"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetIntegration(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE clinics`).
		WithArgs("c1", true, "sub-9", "sorriso").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewPgRepository(mock)
	require.NoError(t, repo.SetIntegration(context.Background(), "c1", "sub-9", "sorriso", true))
	require.NoError(t, mock.ExpectationsWereMet())
}
