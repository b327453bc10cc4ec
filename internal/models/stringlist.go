package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList stores a []string as a JSON text column. SQLite has no native
// array type, and gorm's serializer tags don't survive AutoMigrate on all
// drivers, so the Valuer/Scanner pair is spelled out.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}
