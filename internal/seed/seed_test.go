package seed

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
)

func TestGenerateProducesUsableProfiles(t *testing.T) {
	d := Generate(gofakeit.New(7), 25, 40)

	require.Len(t, d.Doctors, 25)
	require.Len(t, d.Patients, 40)

	for _, p := range d.Doctors {
		assert.Less(t, int(p.WorkStart), int(p.WorkEnd))
		assert.Positive(t, int64(p.Granularity))
		assert.True(t, p.Fee.IsPositive())
		assert.Contains(t, specialities, p.Speciality)
	}
	for _, p := range d.Patients {
		require.NotNil(t, p.Email)
		assert.Contains(t, *p.Email, "@")
	}
}

func TestIntoMemory(t *testing.T) {
	d := Generate(gofakeit.New(11), 2, 3)
	repo := appointment.NewMemoryRepository()
	IntoMemory(repo, d)

	ctx := context.Background()
	for _, doc := range d.Doctors {
		got, err := repo.GetDoctorProfile(ctx, doc.DoctorID)
		require.NoError(t, err)
		assert.Equal(t, doc.Name, got.Name)
	}
	for _, p := range d.Patients {
		got, err := repo.GetPatientByID(ctx, p.ID)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
	}
}
