package model

import (
	"fmt"
	"time"
)

// LocalTime 以 "YYYY-MM-DD HH:MM:SS" 的本地时间格式输出。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// String 返回本地时区下的展示格式。
func (t LocalTime) String() string {
	return time.Time(t).Local().Format(timeFormat)
}

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", t.String())), nil
}
