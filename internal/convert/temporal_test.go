package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampConverterNoZone(t *testing.T) {
	reg := NewDefaultRegistry()
	conv, _ := reg.Lookup("timestamp")

	val, err := conv.FromBytes(ColumnInfo{}, []byte("2024-03-05 13:45:00"))
	require.NoError(t, err)

	ts, ok := val.(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, time.March, ts.Month())
	assert.Equal(t, 5, ts.Day())
	assert.Equal(t, 13, ts.Hour())
}

func TestTimestampTzConverter(t *testing.T) {
	reg := NewDefaultRegistry()
	conv, _ := reg.Lookup("timestamptz")

	val, err := conv.FromBytes(ColumnInfo{}, []byte("2024-03-05 13:45:00.5+02"))
	require.NoError(t, err)

	ts, ok := val.(time.Time)
	require.True(t, ok)
	_, offset := ts.Zone()
	assert.Equal(t, 2*3600, offset)
}

func TestDateConverter(t *testing.T) {
	reg := NewDefaultRegistry()
	conv, _ := reg.Lookup("date")

	val, err := conv.FromBytes(ColumnInfo{}, []byte("2024-01-15"))
	require.NoError(t, err)

	d := val.(time.Time)
	assert.Equal(t, 15, d.Day())
}

func TestIntervalConverterParsesCalendarAndClock(t *testing.T) {
	conv := intervalConverter{}

	val, err := conv.FromBytes(ColumnInfo{}, []byte("1 year 2 mons 3 days 04:05:06.5"))
	require.NoError(t, err)

	iv := val.(Interval)
	assert.EqualValues(t, 14, iv.Months)
	assert.EqualValues(t, 3, iv.Days)
	assert.EqualValues(t, (4*3600+5*60+6)*1_000_000+500_000, iv.Micros)
}

func TestIntervalConverterNegativeClock(t *testing.T) {
	conv := intervalConverter{}

	val, err := conv.FromBytes(ColumnInfo{}, []byte("-04:05:06"))
	require.NoError(t, err)

	iv := val.(Interval)
	assert.EqualValues(t, 0, iv.Months)
	assert.EqualValues(t, 0, iv.Days)
	assert.Less(t, iv.Micros, int64(0))
}

func TestIntervalConverterRoundTrip(t *testing.T) {
	conv := intervalConverter{}

	original := Interval{Months: 14, Days: 3, Micros: (4*3600 + 5*60 + 6) * 1_000_000}

	_, raw, err := conv.ToBytes(original, 0)
	require.NoError(t, err)

	decoded, err := conv.FromBytes(ColumnInfo{}, raw)
	require.NoError(t, err)

	iv := decoded.(Interval)
	assert.Equal(t, original.Months, iv.Months)
	assert.Equal(t, original.Days, iv.Days)
	assert.InDelta(t, original.Micros, iv.Micros, 1)
}
