// Package oid resolves PostgreSQL array type OIDs to their element type OID,
// the lookup the converter registry needs to recurse from an array OID into
// its component converter.
package oid

import "github.com/lib/pq/oid"

// AnyElement is the pseudo component type assigned to the elements of an
// array whose declared target is the unconstrained "any" application type;
// an array-of-arrays whose outer type can't be narrowed defaults its
// sub-array elements to this unspecified/any type.
const AnyElement = "any"

// element maps an array type OID to the OID of its element type, covering
// the scalar families the default converter registry supports.
var element = map[oid.Oid]oid.Oid{
	oid.T__bool:        oid.T_bool,
	oid.T__bytea:       oid.T_bytea,
	oid.T__int2:        oid.T_int2,
	oid.T__int4:        oid.T_int4,
	oid.T__int8:        oid.T_int8,
	oid.T__float4:      oid.T_float4,
	oid.T__float8:      oid.T_float8,
	oid.T__text:        oid.T_text,
	oid.T__varchar:     oid.T_varchar,
	oid.T__bpchar:      oid.T_bpchar,
	oid.T__numeric:     oid.T_numeric,
	oid.T__uuid:        oid.T_uuid,
	oid.T__timestamp:   oid.T_timestamp,
	oid.T__timestamptz: oid.T_timestamptz,
	oid.T__date:        oid.T_date,
	oid.T__time:        oid.T_time,
	oid.T__interval:    oid.T_interval,
	oid.T__json:        oid.T_json,
	oid.T__jsonb:       oid.T_jsonb,
}

// ElementOf returns the element type OID for an array OID, and whether arr
// was recognized as an array type at all.
func ElementOf(arr oid.Oid) (oid.Oid, bool) {
	el, ok := element[arr]
	return el, ok
}

// IsArray reports whether the given OID is one of the array types known to
// ElementOf.
func IsArray(id oid.Oid) bool {
	_, ok := element[id]
	return ok
}
