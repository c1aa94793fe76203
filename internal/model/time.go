package model

import (
	"fmt"
	"time"
)

// LocalTime 将时间格式化为 "YYYY-MM-DD HH:MM:SS"。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).UTC().Format(timeFormat))
	return []byte(formatted), nil
}
