package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap хранит произвольный JSON документ в колонке JSONB.
type JSONMap map[string]any

// Value сериализует карту для записи в базу.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan читает JSONB значение из базы.
func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonmap: неподдерживаемый тип %T", src)
	}

	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}

	return json.Unmarshal(data, m)
}
