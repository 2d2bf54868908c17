package usecases

import (
	"fmt"
	"time"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

// alertTimestampLayout is the date and time format used by the feed, DD.MM.YYYY HH:MM:SS
const alertTimestampLayout = "02.01.2006 15:04:05"

// AlertTimestamp parses an alert's date and time fields as an instant in loc
func AlertTimestamp(a entities.Alert, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(alertTimestampLayout, a.Date+" "+a.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: alert %s has date %q time %q: %v",
			entities.ErrUnparseableTimestamp, a.ID, a.Date, a.Time, err)
	}
	return ts, nil
}

// ResolveWatermark returns the exclusive lower bound for the next feed fetch.
// A zero time means the dataset is empty and everything should be fetched.
// The feed only supports inclusive bounds at second granularity, so the
// newest known alert's timestamp is advanced by one second.
func ResolveWatermark(ds *entities.Dataset, loc *time.Location) (time.Time, error) {
	if ds.Len() == 0 {
		return time.Time{}, nil
	}

	last, err := lastByID(ds.Alerts)
	if err != nil {
		return time.Time{}, err
	}

	ts, err := AlertTimestamp(last, loc)
	if err != nil {
		return time.Time{}, err
	}
	return ts.Add(time.Second), nil
}

// lastByID returns the alert with the highest numeric identifier. For a
// dataset that honours its ordering this is simply the last row.
func lastByID(alerts []entities.Alert) (entities.Alert, error) {
	var (
		best   entities.Alert
		bestID int64
	)
	for i, a := range alerts {
		id, err := a.NumericID()
		if err != nil {
			return entities.Alert{}, err
		}
		if i == 0 || id >= bestID {
			best, bestID = a, id
		}
	}
	return best, nil
}
