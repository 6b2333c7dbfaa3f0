package convert

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/corvidbase/pgwire/internal/wire"
)

type uuidConverter struct{}

func (uuidConverter) Name() string { return "uuid" }
func (uuidConverter) Binary() bool { return false }

func (uuidConverter) FromBytes(_ ColumnInfo, raw []byte) (any, error) {
	return uuid.ParseBytes(raw)
}

func (uuidConverter) ToBytes(value any, _ wire.FormatCode) (wire.FormatCode, []byte, error) {
	u, ok := value.(uuid.UUID)
	if !ok {
		return 0, nil, fmt.Errorf("uuid converter: %T is not a uuid.UUID", value)
	}

	return wire.TextFormat, []byte(u.String()), nil
}
