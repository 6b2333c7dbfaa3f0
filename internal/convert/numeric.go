package convert

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/corvidbase/pgwire/internal/wire"
)

// numericConverter maps PostgreSQL's arbitrary-precision numeric type to
// github.com/shopspring/decimal.Decimal, preserving exact precision instead
// of lossily widening to float64.
type numericConverter struct{}

func (numericConverter) Name() string { return "numeric" }
func (numericConverter) Binary() bool { return false }

func (numericConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	return decimal.NewFromString(string(raw))
}

func (numericConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return wire.TextFormat, []byte(v.String()), nil
	case *decimal.Decimal:
		return wire.TextFormat, []byte(v.String()), nil
	default:
		return 0, nil, fmt.Errorf("numeric converter: %T is not a decimal.Decimal", value)
	}
}
