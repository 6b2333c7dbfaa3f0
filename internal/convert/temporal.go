package convert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/corvidbase/pgwire/internal/wire"
)

const (
	timestampLayout   = "2006-01-02 15:04:05.999999"
	timestampTzLayout = "2006-01-02 15:04:05.999999-07:00"
	dateLayout        = "2006-01-02"
	timeLayout        = "15:04:05.999999"
)

// timestampConverter backs both timestamp and timestamptz; withZone selects
// which of the two text layouts (and parse/format location) applies.
type timestampConverter struct {
	name     string
	withZone bool
}

func (c timestampConverter) Name() string { return c.name }
func (timestampConverter) Binary() bool   { return false }

func (c timestampConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	s := normalizeTzOffset(string(raw))

	if c.withZone {
		return time.Parse(timestampTzLayout, s)
	}

	return time.Parse(timestampLayout, s)
}

// normalizeTzOffset turns PostgreSQL's bare "+00" / "-05" zone suffix into
// Go's "+00:00" / "-05:00" so time.Parse's "-07:00" layout token matches.
func normalizeTzOffset(s string) string {
	idx := strings.LastIndexAny(s, "+-")
	if idx < 0 {
		return s
	}

	// With no zone suffix, idx lands on the date's last '-'; the tail from
	// there still holds the time of day, so the check below returns s
	// unchanged.
	zone := s[idx:]
	if strings.Contains(zone, ":") || len(zone) > 3 {
		return s
	}

	return s[:idx] + zone + ":00"
}

func (c timestampConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	t, ok := value.(time.Time)
	if !ok {
		return 0, nil, fmt.Errorf("%s converter: %T is not a time.Time", c.name, value)
	}

	if c.withZone {
		return wire.TextFormat, []byte(t.Format(timestampTzLayout)), nil
	}

	return wire.TextFormat, []byte(t.Format(timestampLayout)), nil
}

type dateConverter struct{}

func (dateConverter) Name() string { return "date" }
func (dateConverter) Binary() bool { return false }

func (dateConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	return time.Parse(dateLayout, string(raw))
}

func (dateConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	t, ok := value.(time.Time)
	if !ok {
		return 0, nil, fmt.Errorf("date converter: %T is not a time.Time", value)
	}

	return wire.TextFormat, []byte(t.Format(dateLayout)), nil
}

type timeConverter struct{}

func (timeConverter) Name() string { return "time" }
func (timeConverter) Binary() bool { return false }

func (timeConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	return time.Parse(timeLayout, string(raw))
}

func (timeConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	t, ok := value.(time.Time)
	if !ok {
		return 0, nil, fmt.Errorf("time converter: %T is not a time.Time", value)
	}

	return wire.TextFormat, []byte(t.Format(timeLayout)), nil
}

// Interval is the application representation of PostgreSQL's interval type:
// months and days are kept separate from the sub-day duration because
// calendar arithmetic (a month is not a fixed number of nanoseconds) is not
// representable by time.Duration alone.
type Interval struct {
	Months int32
	Days   int32
	Micros int64
}

type intervalConverter struct{}

func (intervalConverter) Name() string { return "interval" }
func (intervalConverter) Binary() bool { return false }

// FromBytes parses PostgreSQL's default "postgres" interval output style,
// e.g. "1 year 2 mons 3 days 04:05:06.789" or "-04:05:06".
func (intervalConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	var iv Interval

	fields := strings.Fields(string(raw))
	i := 0

	for i < len(fields) {
		field := fields[i]

		if strings.ContainsAny(field, ":") || (i == len(fields)-1 && looksLikeClock(field)) {
			micros, err := parseClock(field)
			if err != nil {
				return nil, err
			}

			iv.Micros += micros
			i++
			continue
		}

		if i+1 >= len(fields) {
			return nil, fmt.Errorf("interval converter: malformed interval %q", raw)
		}

		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("interval converter: malformed quantity %q", field)
		}

		unit := fields[i+1]

		switch {
		case strings.HasPrefix(unit, "year"):
			iv.Months += int32(n) * 12
		case strings.HasPrefix(unit, "mon"):
			iv.Months += int32(n)
		case strings.HasPrefix(unit, "day"):
			iv.Days += int32(n)
		default:
			return nil, fmt.Errorf("interval converter: unrecognized unit %q", unit)
		}

		i += 2
	}

	return iv, nil
}

func looksLikeClock(field string) bool {
	return strings.HasPrefix(field, "-") || (len(field) > 0 && field[0] >= '0' && field[0] <= '9')
}

func parseClock(field string) (int64, error) {
	neg := strings.HasPrefix(field, "-")
	field = strings.TrimPrefix(field, "-")

	parts := strings.Split(field, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("interval converter: malformed clock component %q", field)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}

	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}

	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}

	micros := int64(hours)*3600_000_000 + int64(minutes)*60_000_000 + int64(seconds*1_000_000)
	if neg {
		micros = -micros
	}

	return micros, nil
}

func (intervalConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	iv, ok := value.(Interval)
	if !ok {
		return 0, nil, fmt.Errorf("interval converter: %T is not an Interval", value)
	}

	years := iv.Months / 12
	months := iv.Months % 12

	micros := iv.Micros
	neg := micros < 0
	if neg {
		micros = -micros
	}

	hours := micros / 3600_000_000
	micros %= 3600_000_000
	minutes := micros / 60_000_000
	micros %= 60_000_000
	seconds := float64(micros) / 1_000_000

	var b strings.Builder
	fmt.Fprintf(&b, "%d years %d mons %d days ", years, months, iv.Days)

	if neg {
		b.WriteByte('-')
	}

	fmt.Fprintf(&b, "%02d:%02d:%09.6f", hours, minutes, seconds)

	return wire.TextFormat, []byte(b.String()), nil
}
