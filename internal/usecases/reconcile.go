package usecases

import (
	"fmt"
	"sort"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

// Reconcile merges freshly fetched alerts into the known dataset. Alerts are
// matched by rid; when both sides carry the same rid the fetched alert wins.
// The merged alerts are sorted by ascending numeric rid and added is the
// number of identifiers that were not known before.
//
// Reconcile does not modify its inputs.
func Reconcile(known *entities.Dataset, fetched []entities.Alert) (*entities.Dataset, int, error) {
	byID := make(map[string]entities.Alert, known.Len()+len(fetched))

	var knownAlerts []entities.Alert
	var header []string
	if known != nil {
		knownAlerts = known.Alerts
		header = known.Header
	}

	for _, a := range knownAlerts {
		if _, dup := byID[a.ID]; dup {
			return nil, 0, fmt.Errorf("%w: rid %s appears twice in the known dataset", entities.ErrDuplicateID, a.ID)
		}
		byID[a.ID] = a
	}
	for _, a := range fetched {
		byID[a.ID] = a
	}

	type keyed struct {
		id    int64
		alert entities.Alert
	}
	merged := make([]keyed, 0, len(byID))
	for _, a := range byID {
		id, err := a.NumericID()
		if err != nil {
			return nil, 0, err
		}
		merged = append(merged, keyed{id: id, alert: a})
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].id < merged[j].id
	})
	for i := 1; i < len(merged); i++ {
		if merged[i].id == merged[i-1].id {
			return nil, 0, fmt.Errorf("%w: rids %q and %q have the same numeric value",
				entities.ErrDuplicateID, merged[i-1].alert.ID, merged[i].alert.ID)
		}
	}

	out := &entities.Dataset{Alerts: make([]entities.Alert, len(merged))}
	for i, k := range merged {
		out.Alerts[i] = k.alert
	}
	if len(header) == 0 {
		out.Header = entities.DefaultHeader(fetched)
	} else {
		out.Header = entities.ExtendHeader(header, fetched)
	}

	return out, len(out.Alerts) - len(knownAlerts), nil
}

// NewAlerts returns the alerts of merged whose rid is absent from known, in merged order
func NewAlerts(known, merged *entities.Dataset) []entities.Alert {
	seen := make(map[string]bool, known.Len())
	if known != nil {
		for _, a := range known.Alerts {
			seen[a.ID] = true
		}
	}
	var out []entities.Alert
	if merged == nil {
		return out
	}
	for _, a := range merged.Alerts {
		if !seen[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// CommitMessage describes a publish of added alerts
func CommitMessage(added int) string {
	if added == 1 {
		return "Added 1 alert"
	}
	return fmt.Sprintf("Added %d alerts", added)
}
