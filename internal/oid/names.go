package oid

import "github.com/lib/pq/oid"

// names maps a scalar OID to the canonical application-type identifier the
// converter registry is keyed by. Array OIDs are not in this map; they are
// kept in arrayOf, since arrays are handled structurally rather than by a
// registered converter.
var names = map[oid.Oid]string{
	oid.T_bool:        "bool",
	oid.T_bytea:       "bytea",
	oid.T_int2:        "int2",
	oid.T_int4:        "int4",
	oid.T_int8:        "int8",
	oid.T_float4:      "float4",
	oid.T_float8:      "float8",
	oid.T_text:        "text",
	oid.T_varchar:     "varchar",
	oid.T_bpchar:      "bpchar",
	oid.T_numeric:     "numeric",
	oid.T_uuid:        "uuid",
	oid.T_timestamp:   "timestamp",
	oid.T_timestamptz: "timestamptz",
	oid.T_date:        "date",
	oid.T_time:        "time",
	oid.T_interval:    "interval",
	oid.T_json:        "json",
	oid.T_jsonb:       "jsonb",
}

// arrayOf maps an array OID to the arrayed identifier the registry
// recognizes, e.g. T__int4 -> "_int4".
var arrayOf = map[oid.Oid]string{
	oid.T__bool:        "_bool",
	oid.T__bytea:       "_bytea",
	oid.T__int2:        "_int2",
	oid.T__int4:        "_int4",
	oid.T__int8:        "_int8",
	oid.T__float4:      "_float4",
	oid.T__float8:      "_float8",
	oid.T__text:        "_text",
	oid.T__varchar:     "_varchar",
	oid.T__bpchar:      "_bpchar",
	oid.T__numeric:     "_numeric",
	oid.T__uuid:        "_uuid",
	oid.T__timestamp:   "_timestamp",
	oid.T__timestamptz: "_timestamptz",
	oid.T__date:        "_date",
	oid.T__time:        "_time",
	oid.T__interval:    "_interval",
	oid.T__json:        "_json",
	oid.T__jsonb:       "_jsonb",
}

// Identifier returns the canonical application-type identifier for a
// column's data type OID, scalar or array. "any" is returned for any OID
// this table does not recognize, matching the unspecified-type descriptor
// synthesized by the row reader for simple-protocol columns with no
// metadata.
func Identifier(id oid.Oid) string {
	if name, ok := names[id]; ok {
		return name
	}

	if name, ok := arrayOf[id]; ok {
		return name
	}

	return AnyElement
}
