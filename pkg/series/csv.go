package series

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeColumn is the header of the first CSV column.
const TimeColumn = "Timestamp"

// TimeLayout is the timestamp layout written to CSV files (always UTC).
const TimeLayout = "2006-01-02 15:04:05"

// readLayouts are accepted when reading, in order.
var readLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ReadCSV decodes a table from r. The first header cell must be TimeColumn.
// Empty cells are missing values; integral floats such as "12.0" are
// accepted as integers.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("series: csv has no header")
	}
	if err != nil {
		return nil, fmt.Errorf("series: read header: %w", err)
	}
	if len(header) == 0 || strings.TrimPrefix(header[0], "\ufeff") != TimeColumn {
		return nil, fmt.Errorf("series: first column is %q, want %q", header[0], TimeColumn)
	}

	t := New(header[1:])
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("series: read line %d: %w", line, err)
		}

		ts, err := parseTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("series: line %d: %w", line, err)
		}
		row := Row{Time: ts, Values: make([]sql.NullInt64, len(t.Columns))}
		for i, cell := range record[1:] {
			v, err := parseValue(cell)
			if err != nil {
				return nil, fmt.Errorf("series: line %d column %q: %w", line, t.Columns[i], err)
			}
			row.Values[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV encodes t to w in the format ReadCSV accepts.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	record := make([]string, 0, len(t.Columns)+1)
	record = append(record, TimeColumn)
	record = append(record, t.Columns...)
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("series: write header: %w", err)
	}

	for _, r := range t.Rows {
		record = record[:0]
		record = append(record, r.Time.UTC().Format(TimeLayout))
		for _, v := range r.Values {
			if v.Valid {
				record = append(record, strconv.FormatInt(v.Int64, 10))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("series: write row %s: %w", r.Time.Format(TimeLayout), err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range readLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func parseValue(s string) (sql.NullInt64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullInt64{}, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) {
		return sql.NullInt64{}, nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return sql.NullInt64{}, fmt.Errorf("not an integer: %q", s)
	}
	return Int(int64(f)), nil
}
