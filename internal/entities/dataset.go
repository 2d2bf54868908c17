package entities

// Dataset is the full collection of known alerts together with the
// column order of the tabular file it was read from.
type Dataset struct {
	Header []string
	Alerts []Alert
}

// Len returns the number of alerts in the dataset
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Alerts)
}

// DefaultHeader derives a header for a dataset with no prior file: the core
// columns followed by every extra key in first-seen order.
func DefaultHeader(alerts []Alert) []string {
	header := []string{ColumnID, ColumnDate, ColumnTime}
	return ExtendHeader(header, alerts)
}

// ExtendHeader appends extra keys that the header does not yet name, in
// first-seen order. The input slice is not modified.
func ExtendHeader(header []string, alerts []Alert) []string {
	out := make([]string, len(header), len(header)+4)
	copy(out, header)

	seen := make(map[string]bool, len(header))
	for _, c := range header {
		seen[c] = true
	}
	for _, a := range alerts {
		for _, k := range a.ExtraKeys() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
