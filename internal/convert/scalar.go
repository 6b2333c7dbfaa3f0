package convert

import (
	"fmt"
	"strconv"

	"github.com/corvidbase/pgwire/internal/wire"
)

type boolConverter struct{}

func (boolConverter) Name() string { return "bool" }
func (boolConverter) Binary() bool { return false }

func (boolConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	if len(raw) != 1 {
		return strconv.ParseBool(string(raw))
	}

	switch raw[0] {
	case 't':
		return true, nil
	case 'f':
		return false, nil
	default:
		return strconv.ParseBool(string(raw))
	}
}

func (boolConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	b, ok := value.(bool)
	if !ok {
		return 0, nil, fmt.Errorf("bool converter: %T is not a bool", value)
	}

	if b {
		return wire.TextFormat, []byte{'t'}, nil
	}

	return wire.TextFormat, []byte{'f'}, nil
}

type int2Converter struct{}

func (int2Converter) Name() string { return "int2" }
func (int2Converter) Binary() bool { return false }

func (int2Converter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	n, err := strconv.ParseInt(string(raw), 10, 16)
	if err != nil {
		return nil, err
	}

	return int16(n), nil
}

func (int2Converter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	n, err := toInt64(value)
	if err != nil {
		return 0, nil, fmt.Errorf("int2 converter: %w", err)
	}

	return wire.TextFormat, []byte(strconv.FormatInt(n, 10)), nil
}

type int4Converter struct{}

func (int4Converter) Name() string { return "int4" }
func (int4Converter) Binary() bool { return false }

func (int4Converter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	n, err := strconv.ParseInt(string(raw), 10, 32)
	if err != nil {
		return nil, err
	}

	return int32(n), nil
}

func (int4Converter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	n, err := toInt64(value)
	if err != nil {
		return 0, nil, fmt.Errorf("int4 converter: %w", err)
	}

	return wire.TextFormat, []byte(strconv.FormatInt(n, 10)), nil
}

type int8Converter struct{}

func (int8Converter) Name() string { return "int8" }
func (int8Converter) Binary() bool { return false }

func (int8Converter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	return strconv.ParseInt(string(raw), 10, 64)
}

func (int8Converter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	n, err := toInt64(value)
	if err != nil {
		return 0, nil, fmt.Errorf("int8 converter: %w", err)
	}

	return wire.TextFormat, []byte(strconv.FormatInt(n, 10)), nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%T is not an integer", value)
	}
}

type float4Converter struct{}

func (float4Converter) Name() string { return "float4" }
func (float4Converter) Binary() bool { return false }

func (float4Converter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	n, err := strconv.ParseFloat(string(raw), 32)
	if err != nil {
		return nil, err
	}

	return float32(n), nil
}

func (float4Converter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	var f float64

	switch v := value.(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return 0, nil, fmt.Errorf("float4 converter: %T is not a float", value)
	}

	return wire.TextFormat, []byte(strconv.FormatFloat(f, 'g', -1, 32)), nil
}

type float8Converter struct{}

func (float8Converter) Name() string { return "float8" }
func (float8Converter) Binary() bool { return false }

func (float8Converter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	return strconv.ParseFloat(string(raw), 64)
}

func (float8Converter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	f, ok := value.(float64)
	if !ok {
		if f32, ok2 := value.(float32); ok2 {
			f = float64(f32)
		} else {
			return 0, nil, fmt.Errorf("float8 converter: %T is not a float", value)
		}
	}

	return wire.TextFormat, []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// textConverter backs text, varchar, and bpchar: all three carry application
// values as plain Go strings with no additional parsing.
type textConverter struct{ name string }

func (c textConverter) Name() string { return c.name }
func (textConverter) Binary() bool   { return false }

func (textConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	return string(raw), nil
}

func (textConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	switch v := value.(type) {
	case string:
		return wire.TextFormat, []byte(v), nil
	case fmt.Stringer:
		return wire.TextFormat, []byte(v.String()), nil
	default:
		return 0, nil, fmt.Errorf("text converter: %T is not a string", value)
	}
}

// byteaConverter decodes PostgreSQL's "\x"-prefixed hex text encoding for
// bytea, the only encoding a server running hex_bytes output (the default
// since PostgreSQL 9.0) emits in text format.
type byteaConverter struct{}

func (byteaConverter) Name() string { return "bytea" }
func (byteaConverter) Binary() bool { return false }

func (byteaConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	if len(raw) >= 2 && raw[0] == '\\' && raw[1] == 'x' {
		return decodeHex(raw[2:])
	}

	return decodeEscapeBytea(raw)
}

func decodeHex(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw)/2)

	for i := range out {
		hi, err := hexDigit(raw[2*i])
		if err != nil {
			return nil, err
		}

		lo, err := hexDigit(raw[2*i+1])
		if err != nil {
			return nil, err
		}

		out[i] = hi<<4 | lo
	}

	return out, nil
}

func hexDigit(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("bytea converter: invalid hex digit %q", b)
	}
}

// decodeEscapeBytea decodes the legacy octal-escape bytea text format, kept
// for servers with bytea_output=escape.
func decodeEscapeBytea(raw []byte) ([]byte, error) {
	out := make([]byte, 0, len(raw))

	for i := 0; i < len(raw); {
		if raw[i] != '\\' {
			out = append(out, raw[i])
			i++
			continue
		}

		if i+1 < len(raw) && raw[i+1] == '\\' {
			out = append(out, '\\')
			i += 2
			continue
		}

		if i+3 < len(raw) {
			n, err := strconv.ParseUint(string(raw[i+1:i+4]), 8, 8)
			if err == nil {
				out = append(out, byte(n))
				i += 4
				continue
			}
		}

		return nil, fmt.Errorf("bytea converter: malformed escape at byte %d", i)
	}

	return out, nil
}

func (byteaConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	b, ok := value.([]byte)
	if !ok {
		return 0, nil, fmt.Errorf("bytea converter: %T is not []byte", value)
	}

	out := make([]byte, 2+2*len(b))
	out[0], out[1] = '\\', 'x'

	const hexDigits = "0123456789abcdef"
	for i, c := range b {
		out[2+2*i] = hexDigits[c>>4]
		out[2+2*i+1] = hexDigits[c&0x0f]
	}

	return wire.TextFormat, out, nil
}
