package batch

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/steamstats/steamstats/pkg/series"
)

// ErrUnparseable is returned when a payload cannot be located or decoded.
var ErrUnparseable = errors.New("unparseable payload")

// ParseCallback decodes a padded-callback payload of the form
//
//	callback({"json": "[{\"label\": ..., \"data\": [[ms, v], ...]}, ...]"})
//
// The document is taken from between the first "(" and the last ")".
func ParseCallback(body []byte) (*series.Table, error) {
	start := bytes.IndexByte(body, '(')
	end := bytes.LastIndexByte(body, ')')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: callback delimiters not found", ErrUnparseable)
	}

	doc := body[start+1 : end]
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: callback document is not valid json", ErrUnparseable)
	}
	inner := gjson.GetBytes(doc, "json")
	if inner.Type != gjson.String {
		return nil, fmt.Errorf("%w: callback document has no \"json\" string", ErrUnparseable)
	}
	return parseSeriesList([]byte(inner.Str), strings.TrimSpace)
}

// ParseSeriesList decodes a JSON list of {label, data} series. suffix, when
// non-empty, is trimmed from the end of every label.
func ParseSeriesList(body []byte, suffix string) (*series.Table, error) {
	return parseSeriesList(body, func(label string) string {
		label = strings.TrimSpace(label)
		if suffix != "" {
			label = strings.TrimSpace(strings.TrimSuffix(label, suffix))
		}
		return label
	})
}

func parseSeriesList(body []byte, name func(string) string) (*series.Table, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: series list is not valid json", ErrUnparseable)
	}
	list := gjson.ParseBytes(body)
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: series list is %s, want array", ErrUnparseable, list.Type)
	}

	var (
		cols []series.Column
		perr error
	)
	list.ForEach(func(_, s gjson.Result) bool {
		col, err := parseSeries(s, name)
		if err != nil {
			perr = err
			return false
		}
		cols = append(cols, col)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: series list is empty", ErrUnparseable)
	}
	return series.Join(cols), nil
}

func parseSeries(s gjson.Result, name func(string) string) (series.Column, error) {
	label := s.Get("label")
	if label.Type != gjson.String {
		return series.Column{}, fmt.Errorf("%w: series without label", ErrUnparseable)
	}
	data := s.Get("data")
	if !data.IsArray() {
		return series.Column{}, fmt.Errorf("%w: series %q has no data array", ErrUnparseable, label.Str)
	}

	col := series.Column{Name: name(label.Str)}
	for i, pair := range data.Array() {
		p := pair.Array()
		if !pair.IsArray() || len(p) < 2 || p[0].Type != gjson.Number {
			return series.Column{}, fmt.Errorf("%w: series %q point %d is malformed", ErrUnparseable, label.Str, i)
		}

		pt := series.Point{Time: time.UnixMilli(p[0].Int()).UTC()}
		switch p[1].Type {
		case gjson.Number:
			pt.Value = series.Int(p[1].Int())
		case gjson.Null:
			// missing
		default:
			return series.Column{}, fmt.Errorf("%w: series %q point %d value is %s", ErrUnparseable, label.Str, i, p[1].Type)
		}
		col.Points = append(col.Points, pt)
	}
	return col, nil
}
