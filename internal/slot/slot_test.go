package slot

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(570), c)
	assert.Equal(t, "09:30", c.String())

	_, err = ParseClock("9.30am")
	assert.ErrorIs(t, err, ErrInvalidClock)

	_, err = ParseClock("24:00")
	assert.ErrorIs(t, err, ErrInvalidClock)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, Date("2024-06-01"), d)

	_, err = ParseDate("1_6_2024")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseDate("2024-02-30")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDateArithmetic(t *testing.T) {
	d := Date("2024-02-28")
	assert.Equal(t, Date("2024-02-29"), d.AddDays(1))
	assert.Equal(t, Date("2024-03-01"), d.AddDays(2))
	assert.True(t, d < d.AddDays(1))
}

func TestClockOnDate(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)

	at := Clock(630).On("2024-06-01", loc)
	assert.Equal(t, 10, at.Hour())
	assert.Equal(t, 30, at.Minute())
	assert.Equal(t, Date("2024-06-01"), DateOf(at, loc))
	assert.Equal(t, Clock(630), ClockOf(at))
	assert.Equal(t, Clock(660), Clock(630).Add(30*time.Minute))
}

func TestKeyOrdering(t *testing.T) {
	doc := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	other := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	a := Key{DoctorID: doc, Date: "2024-06-01", Time: 600}
	b := Key{DoctorID: doc, Date: "2024-06-01", Time: 630}
	c := Key{DoctorID: doc, Date: "2024-06-02", Time: 540}
	d := Key{DoctorID: other, Date: "2024-05-01", Time: 0}

	assert.Negative(t, a.Compare(b))
	assert.Negative(t, b.Compare(c))
	assert.Negative(t, c.Compare(d))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(a))
}
