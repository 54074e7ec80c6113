package models

import (
	"database/sql/driver"
	"fmt"
)

// JSON — значение jsonb-колонки. Передаётся драйверу строкой, иначе lib/pq отправит его как bytea.
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("models: неподдерживаемый тип jsonb %T", src)
	}
	return nil
}
