package model

import (
	"fmt"
	"strconv"
	"time"
)

// LocalTime renders as "YYYY-MM-DD HH:MM:SS" in JSON, in the server's zone.
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(t).Format(timeFormat))), nil
}

// UnmarshalJSON accepts the format MarshalJSON writes; null leaves t unchanged.
func (t *LocalTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("local time: %w", err)
	}
	parsed, err := time.ParseInLocation(timeFormat, s, time.Local)
	if err != nil {
		return fmt.Errorf("local time: %w", err)
	}
	*t = LocalTime(parsed)
	return nil
}
