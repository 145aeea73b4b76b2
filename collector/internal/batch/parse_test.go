package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// callbackPayload wraps a series list the way the bandwidth endpoint does:
// the list is JSON-encoded into the "json" string field of a document that is
// itself wrapped in a callback call.
func callbackPayload(t *testing.T, list string) []byte {
	t.Helper()
	doc, err := json.Marshal(map[string]string{"json": list})
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	return []byte(fmt.Sprintf("onBandwidthData(%s);\n", doc))
}

// ms returns the epoch milliseconds of 2024-01-01 plus n minutes.
func ms(n int) int64 {
	return time.Date(2024, 1, 1, 0, n, 0, 0, time.UTC).UnixMilli()
}

func TestParseCallback(t *testing.T) {
	list := fmt.Sprintf(`[
		{"label": "Europe", "data": [[%d, 1200], [%d, 1300]]},
		{"label": "Asia",   "data": [[%d, 800], [%d, 850.7]]}
	]`, ms(10), ms(0), ms(0), ms(20))

	tbl, err := ParseCallback(callbackPayload(t, list))
	if err != nil {
		t.Fatalf("ParseCallback() error = %v", err)
	}

	if got := strings.Join(tbl.Columns, ","); got != "Europe,Asia" {
		t.Errorf("Columns = %q", got)
	}
	if tbl.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", tbl.Len())
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !tbl.Start().Equal(want) {
		t.Errorf("Start() = %v, want %v", tbl.Start(), want)
	}
	if loc := tbl.Start().Location(); loc != time.UTC {
		t.Errorf("Start() location = %v, want UTC", loc)
	}
	// 00:00 → Europe 1300, Asia 800.
	if v := tbl.Rows[0].Values; v[0].Int64 != 1300 || v[1].Int64 != 800 {
		t.Errorf("Rows[0] = %v, want [1300 800]", v)
	}
	// 00:10 → Europe only.
	if tbl.Rows[1].Values[1].Valid {
		t.Error("Asia at 00:10 should be missing")
	}
	// Fractional values are truncated to integer counts.
	if got := tbl.Rows[2].Values[1].Int64; got != 850 {
		t.Errorf("Asia at 00:20 = %d, want 850", got)
	}
}

func TestParseCallback_Unparseable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no delimiters", `{"json": "[]"}`},
		{"reversed delimiters", `)({"json": "[]"}`},
		{"html error page", `<html><body>Access Denied</body></html>`},
		{"invalid document", `cb({"json": )`},
		{"missing json field", `cb({"data": []})`},
		{"json field not a string", `cb({"json": []})`},
		{"inner list invalid", `cb({"json": "[{"})`},
		{"inner list empty", `cb({"json": "[]"})`},
		{"inner not array", `cb({"json": "{}"})`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCallback([]byte(tc.body))
			if !errors.Is(err, ErrUnparseable) {
				t.Errorf("ParseCallback() error = %v, want ErrUnparseable", err)
			}
		})
	}
}

func TestParseSeriesList_TrimsLabelSuffix(t *testing.T) {
	body := fmt.Sprintf(`[
		{"label": "Pending requests", "data": [[%d, 12], [%d, 14]]},
		{"label": " Processed requests ", "data": [[%d, 30], [%d, null]]}
	]`, ms(0), ms(1440), ms(0), ms(1440))

	tbl, err := ParseSeriesList([]byte(body), "requests")
	if err != nil {
		t.Fatalf("ParseSeriesList() error = %v", err)
	}
	if got := strings.Join(tbl.Columns, ","); got != "Pending,Processed" {
		t.Errorf("Columns = %q, want Pending,Processed", got)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	if tbl.Rows[1].Values[1].Valid {
		t.Error("null value should decode as missing")
	}
}

func TestParseSeriesList_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `Service Unavailable`},
		{"object", `{"label": "x"}`},
		{"missing label", `[{"data": [[1, 2]]}]`},
		{"missing data", `[{"label": "x"}]`},
		{"short point", `[{"label": "x", "data": [[1]]}]`},
		{"string timestamp", `[{"label": "x", "data": [["1", 2]]}]`},
		{"string value", `[{"label": "x", "data": [[1, "2"]]}]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSeriesList([]byte(tc.body), "")
			if !errors.Is(err, ErrUnparseable) {
				t.Errorf("ParseSeriesList() error = %v, want ErrUnparseable", err)
			}
		})
	}
}
