package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a free-form object stored as a JSON text column.
type JSONMap map[string]any

// Scan implements sql.Scanner. NULL scans to a nil map.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T", v)
	}

	if len(raw) == 0 || string(raw) == "null" {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, (*map[string]any)(m))
}

// Value implements driver.Valuer. A nil map is stored as NULL.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
