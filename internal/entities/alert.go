// Package entities contains the core domain objects for the alerts-sync application
package entities

import (
	"fmt"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Column names of the fields every alert must carry
const (
	ColumnID   = "rid"
	ColumnDate = "date"
	ColumnTime = "time"
)

// Alert represents a single alert entry as published by the feed
type Alert struct {
	ID    string // Unique identifier assigned by the feed (rid), kept verbatim
	Date  string // Calendar date, DD.MM.YYYY
	Time  string // Time of day, HH:MM:SS
	Extra *orderedmap.OrderedMap[string, string]
}

// NewAlert creates an alert with an empty extra fields bag
func NewAlert(id, date, tm string) Alert {
	return Alert{
		ID:    id,
		Date:  date,
		Time:  tm,
		Extra: orderedmap.New[string, string](),
	}
}

// NumericID parses the alert identifier as an integer
func (a Alert) NumericID() (int64, error) {
	n, err := strconv.ParseInt(a.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: rid %q is not numeric", ErrMalformedDataset, a.ID)
	}
	return n, nil
}

// Get returns the value of the named column, core or extra
func (a Alert) Get(column string) string {
	switch column {
	case ColumnID:
		return a.ID
	case ColumnDate:
		return a.Date
	case ColumnTime:
		return a.Time
	}
	if a.Extra == nil {
		return ""
	}
	v, _ := a.Extra.Get(column)
	return v
}

// Set assigns the value of the named column, core or extra
func (a *Alert) Set(column, value string) {
	switch column {
	case ColumnID:
		a.ID = value
	case ColumnDate:
		a.Date = value
	case ColumnTime:
		a.Time = value
	default:
		if a.Extra == nil {
			a.Extra = orderedmap.New[string, string]()
		}
		a.Extra.Set(column, value)
	}
}

// ExtraKeys returns the extra field names in insertion order
func (a Alert) ExtraKeys() []string {
	if a.Extra == nil {
		return nil
	}
	keys := make([]string, 0, a.Extra.Len())
	for pair := a.Extra.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}
