// Package convert implements the bidirectional mapping between typed
// application values and PostgreSQL text/binary wire representations,
// plus the recursive array text grammar.
package convert

import (
	"strings"

	"github.com/lib/pq/oid"

	pgerr "github.com/corvidbase/pgwire/errors"
	pgoid "github.com/corvidbase/pgwire/internal/oid"
	"github.com/corvidbase/pgwire/internal/wire"
)

// ColumnInfo is the subset of a column descriptor a converter needs to
// interpret a raw value (e.g. a type modifier affecting precision).
type ColumnInfo struct {
	Name         string
	DataTypeOID  oid.Oid
	TypeModifier int32
	Format       wire.FormatCode
}

// Converter is a stateless, per-type bidirectional codec between raw wire
// bytes and an application value.
type Converter interface {
	// Name is the canonical application-type identifier this converter is
	// registered under, e.g. "int4", "numeric", "uuid".
	Name() string
	// Binary reports whether ToBytes/FromBytes support the binary format in
	// addition to the always-mandatory text format.
	Binary() bool
	// FromBytes decodes a non-nil raw wire value. The registry, not the
	// converter, handles the null case (raw == nil).
	FromBytes(col ColumnInfo, raw []byte) (any, error)
	// ToBytes encodes an application value, returning the format it chose
	// (Text unless Binary() and the caller requested binary) and the bytes.
	ToBytes(value any, format wire.FormatCode) (wire.FormatCode, []byte, error)
}

// Registry is an immutable-once-built mapping from application-type
// identifier to Converter, plus the structural array fallback for
// underscore-prefixed array type names.
type Registry struct {
	byName map[string]Converter
}

// NewRegistry builds a registry from an ordered list of converters. Earlier
// entries take precedence over later ones with the same Name, so a caller
// wanting to override a default passes their converter first followed by
// Defaults()..., so a user converter always takes precedence.
func NewRegistry(converters ...Converter) *Registry {
	reg := &Registry{byName: make(map[string]Converter, len(converters))}

	for _, c := range converters {
		if _, exists := reg.byName[c.Name()]; exists {
			continue
		}

		reg.byName[c.Name()] = c
	}

	return reg
}

// Defaults returns the built-in converter set: integers, floats, booleans,
// text, timestamps, intervals, UUIDs, byte strings, and numeric/decimal.
func Defaults() []Converter {
	return []Converter{
		boolConverter{},
		int2Converter{},
		int4Converter{},
		int8Converter{},
		float4Converter{},
		float8Converter{},
		textConverter{name: "text"},
		textConverter{name: "varchar"},
		textConverter{name: "bpchar"},
		byteaConverter{},
		numericConverter{},
		uuidConverter{},
		timestampConverter{name: "timestamp", withZone: false},
		timestampConverter{name: "timestamptz", withZone: true},
		dateConverter{},
		timeConverter{},
		intervalConverter{},
	}
}

// NewDefaultRegistry builds the registry covering the full built-in
// converter set.
func NewDefaultRegistry() *Registry {
	return NewRegistry(Defaults()...)
}

// Lookup resolves a converter for a target-type identifier, recursing
// through the array naming convention ("_int4" -> component "int4") when no
// converter is registered directly under that name.
func (r *Registry) Lookup(target string) (Converter, error) {
	if c, ok := r.byName[target]; ok {
		return c, nil
	}

	if strings.HasPrefix(target, "_") {
		component := target[1:]
		if component == "" {
			component = AnyElement
		}

		elem, err := r.Lookup(component)
		if err != nil {
			return nil, err
		}

		return &arrayConverter{name: target, elem: elem, registry: r}, nil
	}

	if target == AnyElement {
		return anyConverter{}, nil
	}

	return nil, &pgerr.NoConversion{Type: target}
}

// AnyElement is the fallback component type assigned to array elements when
// the outer target denotes an unconstrained array.
const AnyElement = "any"

// LookupOID resolves a converter directly from a column's DataTypeOID,
// recursing into the array component OID via internal/oid's fixed table
// rather than trimming a "_"-prefixed string. This is the path Row.Get takes
// when the caller does not name a target type explicitly.
func (r *Registry) LookupOID(id oid.Oid) (Converter, error) {
	if pgoid.IsArray(id) {
		elem, ok := pgoid.ElementOf(id)
		if !ok {
			return r.Lookup("_")
		}

		elemConv, err := r.LookupOID(elem)
		if err != nil {
			return nil, err
		}

		return &arrayConverter{name: pgoid.Identifier(id), elem: elemConv, registry: r}, nil
	}

	return r.Lookup(pgoid.Identifier(id))
}

// FromBytes decodes raw into an application value via the converter
// registered for target, honoring the null law: a nil raw always decodes to
// a nil value without consulting the converter. An empty target defers to
// LookupOID, deriving the converter from the column's own DataTypeOID.
func (r *Registry) FromBytes(col ColumnInfo, target string, raw []byte) (any, error) {
	if raw == nil {
		return nil, nil
	}

	var conv Converter
	var err error
	if target == "" {
		conv, err = r.LookupOID(col.DataTypeOID)
	} else {
		conv, err = r.Lookup(target)
	}
	if err != nil {
		return nil, err
	}

	val, err := conv.FromBytes(col, raw)
	if err != nil {
		return nil, &pgerr.ConvertToFailed{Type: target, OID: uint32(col.DataTypeOID), Cause: err}
	}

	if val == nil {
		return nil, pgerr.ErrInvalidConvertDataType
	}

	return val, nil
}

// ToBytes encodes value via the converter registered for target.
func (r *Registry) ToBytes(target string, value any, format wire.FormatCode) (wire.FormatCode, []byte, error) {
	if value == nil {
		return wire.TextFormat, nil, nil
	}

	conv, err := r.Lookup(target)
	if err != nil {
		return 0, nil, err
	}

	return conv.ToBytes(value, format)
}

// anyConverter passes raw bytes through unchanged; used as the component
// type of an array whose target could not be further narrowed.
type anyConverter struct{}

func (anyConverter) Name() string    { return AnyElement }
func (anyConverter) Binary() bool    { return false }
func (anyConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	return string(raw), nil
}

func (anyConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	switch v := value.(type) {
	case string:
		return wire.TextFormat, []byte(v), nil
	case []byte:
		return wire.TextFormat, v, nil
	default:
		return wire.TextFormat, []byte(nil), nil
	}
}
