package repository

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

const utf8BOM = "\ufeff"

// DecodeDataset parses a comma-separated dataset with a header row.
// An empty input yields an empty dataset.
func DecodeDataset(r io.Reader) (*entities.Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &entities.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", entities.ErrMalformedDataset, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	ds := &entities.Dataset{Header: header}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", entities.ErrMalformedDataset, err)
		}

		alert := entities.NewAlert("", "", "")
		for i, column := range header {
			alert.Set(column, row[i])
		}
		ds.Alerts = append(ds.Alerts, alert)
	}

	return ds, nil
}

// EncodeDataset writes the dataset as CSV, header row first
func EncodeDataset(w io.Writer, ds *entities.Dataset) error {
	if err := validateHeader(ds.Header); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(ds.Header); err != nil {
		return fmt.Errorf("failed to write header: %v", err)
	}

	row := make([]string, len(ds.Header))
	for _, alert := range ds.Alerts {
		for i, column := range ds.Header {
			row[i] = alert.Get(column)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write alert %s: %v", alert.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// MarshalDataset is EncodeDataset into a byte slice
func MarshalDataset(ds *entities.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeDataset(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, column := range header {
		if column == "" {
			return fmt.Errorf("%w: empty column name in header %v", entities.ErrMalformedDataset, header)
		}
		if seen[column] {
			return fmt.Errorf("%w: column %q appears twice in header", entities.ErrMalformedDataset, column)
		}
		seen[column] = true
	}
	for _, required := range []string{entities.ColumnID, entities.ColumnDate, entities.ColumnTime} {
		if !seen[required] {
			return fmt.Errorf("%w: header %v is missing column %q", entities.ErrMalformedDataset, header, required)
		}
	}
	return nil
}
