package domain

import (
	"errors"
	"time"
)

type UserID string
type MessageID string

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type Timestamp = time.Time

// ErrRecordNotFound is returned by a TranscriptStore when a key has no record.
var ErrRecordNotFound = errors.New("record not found")

// Period is the user-selected time window: a month ("2024-03") or PeriodAll.
type Period string

const PeriodAll Period = "all"

const (
	dateLayout   = "2006-01-02"
	periodLayout = "2006-01"
)

// IsAll reports whether the period covers every record.
func (p Period) IsAll() bool {
	return p == PeriodAll || p == ""
}

// Valid reports whether p is PeriodAll or a well-formed month.
func (p Period) Valid() bool {
	if p == PeriodAll {
		return true
	}
	_, err := time.Parse(periodLayout, string(p))
	return err == nil
}

// Contains reports whether a YYYY-MM-DD date falls in the period.
func (p Period) Contains(date string) bool {
	if p.IsAll() {
		return true
	}
	month, ok := PeriodOfDate(date)
	return ok && month == p
}

// PeriodOfDate returns the month period a YYYY-MM-DD date belongs to.
func PeriodOfDate(date string) (Period, bool) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", false
	}
	return PeriodOf(t), true
}

// PeriodOf returns the month period of t.
func PeriodOf(t time.Time) Period {
	return Period(t.Format(periodLayout))
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(date string) (time.Time, error) {
	return time.Parse(dateLayout, date)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
