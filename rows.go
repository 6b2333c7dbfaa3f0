package pgwire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq/oid"

	"github.com/corvidbase/pgwire/codes"
	"github.com/corvidbase/pgwire/internal/convert"
	"github.com/corvidbase/pgwire/internal/wire"

	pgerr "github.com/corvidbase/pgwire/errors"
)

// Column is one field of a RowDescription: immutable once parsed off the
// wire.
type Column struct {
	Index        int
	Name         string
	TableOID     uint32
	AttrNo       int16
	DataTypeOID  oid.Oid
	TypeSize     int16
	TypeModifier int32
	Format       wire.FormatCode
}

// RowDescription is the ordered column list a RowDescription message
// carries, plus a case-folded name index built once at creation. Indices
// are dense 0..N-1; names need not be unique and name lookup returns the
// first match.
type RowDescription struct {
	Columns []Column
	byName  map[string]int
}

func newRowDescription(columns []Column) *RowDescription {
	byName := make(map[string]int, len(columns))

	for _, col := range columns {
		folded := strings.ToLower(col.Name)
		if _, exists := byName[folded]; !exists {
			byName[folded] = col.Index
		}
	}

	return &RowDescription{Columns: columns, byName: byName}
}

// Row is one DataRow's raw field payloads, immutable after assembly. A nil
// entry in Values denotes SQL NULL. Description is nil for a row produced
// where no RowDescription preceded it (not expected in practice, but the
// Get accessor tolerates it per the row reader's synthesized-descriptor
// rule).
type Row struct {
	Description *RowDescription
	Values      [][]byte
}

// Get resolves colIndexOrName (an int index or a string name) against the
// row's description, converts the raw bytes via reg under targetType, and
// returns the typed application value. If targetType is "", the column's
// own DataTypeOID picks the converter (see Registry.LookupOID).
func (r *Row) Get(colIndexOrName any, targetType string, reg *convert.Registry) (any, error) {
	idx, col, err := r.resolve(colIndexOrName)
	if err != nil {
		return nil, err
	}

	info := convert.ColumnInfo{Format: wire.TextFormat}
	if col != nil {
		info = convert.ColumnInfo{
			Name:         col.Name,
			DataTypeOID:  col.DataTypeOID,
			TypeModifier: col.TypeModifier,
			Format:       col.Format,
		}
	}

	return reg.FromBytes(info, targetType, r.Values[idx])
}

// resolve validates colIndexOrName against the row's description (or, for
// an index selector with no description, against the raw value count
// directly — the simple-protocol edge case of an unspecified-type
// descriptor).
func (r *Row) resolve(colIndexOrName any) (int, *Column, error) {
	switch v := colIndexOrName.(type) {
	case int:
		if r.Description == nil {
			if v < 0 || v >= len(r.Values) {
				return 0, nil, pgerr.ErrColumnNotPresent
			}

			return v, nil, nil
		}

		if v < 0 || v >= len(r.Description.Columns) {
			return 0, nil, pgerr.ErrColumnNotPresent
		}

		return v, &r.Description.Columns[v], nil
	case string:
		if r.Description == nil {
			return 0, nil, pgerr.ErrMissingRowMeta
		}

		idx, ok := r.Description.byName[strings.ToLower(v)]
		if !ok {
			return 0, nil, pgerr.ErrColumnNotPresent
		}

		return idx, &r.Description.Columns[idx], nil
	default:
		return 0, nil, fmt.Errorf("pgwire: unsupported column selector type %T", colIndexOrName)
	}
}

// parseRowDescription reads a RowDescription message body off reader.Msg.
func parseRowDescription(r *wire.Reader) (*RowDescription, error) {
	n, err := r.GetInt16()
	if err != nil {
		return nil, err
	}

	columns := make([]Column, n)

	for i := range columns {
		name, err := r.GetString()
		if err != nil {
			return nil, err
		}

		tableOID, err := r.GetUint32()
		if err != nil {
			return nil, err
		}

		attrNo, err := r.GetInt16()
		if err != nil {
			return nil, err
		}

		dataTypeOID, err := r.GetUint32()
		if err != nil {
			return nil, err
		}

		typeSize, err := r.GetInt16()
		if err != nil {
			return nil, err
		}

		typeModifier, err := r.GetInt32()
		if err != nil {
			return nil, err
		}

		format, err := r.GetInt16()
		if err != nil {
			return nil, err
		}

		columns[i] = Column{
			Index:        i,
			Name:         name,
			TableOID:     tableOID,
			AttrNo:       attrNo,
			DataTypeOID:  oid.Oid(dataTypeOID),
			TypeSize:     typeSize,
			TypeModifier: typeModifier,
			Format:       wire.FormatCode(format),
		}
	}

	return newRowDescription(columns), nil
}

// parseDataRow reads a DataRow message body, attributing it to desc (which
// may be nil for the simple-protocol edge case).
func parseDataRow(r *wire.Reader, desc *RowDescription) (*Row, error) {
	n, err := r.GetInt16()
	if err != nil {
		return nil, err
	}

	values := make([][]byte, n)

	for i := range values {
		length, err := r.GetInt32()
		if err != nil {
			return nil, err
		}

		raw, err := r.GetBytes(int(length))
		if err != nil {
			return nil, err
		}

		values[i] = raw
	}

	return &Row{Description: desc, Values: values}, nil
}

// parseParameterDescription reads a ParameterDescription message body.
func parseParameterDescription(r *wire.Reader) ([]oid.Oid, error) {
	n, err := r.GetInt16()
	if err != nil {
		return nil, err
	}

	oids := make([]oid.Oid, n)

	for i := range oids {
		v, err := r.GetUint32()
		if err != nil {
			return nil, err
		}

		oids[i] = oid.Oid(v)
	}

	return oids, nil
}

// parseErrorFields reads the field-type/null-terminated-string pairs common
// to ErrorResponse and NoticeResponse, up to the terminating zero byte.
func parseErrorFields(r *wire.Reader) (pgerr.Error, error) {
	var e pgerr.Error

	for {
		fieldType, err := r.GetByte()
		if err != nil {
			return e, err
		}

		if fieldType == 0 {
			break
		}

		value, err := r.GetString()
		if err != nil {
			return e, err
		}

		switch fieldType {
		case 'S':
			e.Severity = pgerr.Severity(value)
		case 'C':
			e.Code = codes.Code(value)
		case 'M':
			e.Message = value
		case 'D':
			e.Detail = value
		case 'H':
			e.Hint = value
		case 'n':
			e.ConstraintName = value
		case 'P':
			if pos, perr := strconv.Atoi(value); perr == nil {
				e.Position = int32(pos)
			}
		case 'F', 'L', 'R':
			if e.Source == nil {
				e.Source = &pgerr.Source{}
			}

			switch fieldType {
			case 'F':
				e.Source.File = value
			case 'L':
				if line, lerr := strconv.Atoi(value); lerr == nil {
					e.Source.Line = int32(line)
				}
			case 'R':
				e.Source.Function = value
			}
		}
	}

	return e, nil
}
