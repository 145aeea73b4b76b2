// Package feedtest builds provider payloads for tests: the padded-callback
// bandwidth document and the plain support-request series list.
package feedtest

import (
	"encoding/json"
	"time"
)

// Series is one provider series in wire form.
type Series struct {
	Label string     `json:"label"`
	Data  [][2]int64 `json:"data"`
}

// Steps returns one series per label with n points spaced step apart from
// start. The value of point k in series i is 1000*i + k.
func Steps(labels []string, start time.Time, step time.Duration, n int) []Series {
	out := make([]Series, 0, len(labels))
	for i, label := range labels {
		s := Series{Label: label, Data: make([][2]int64, 0, n)}
		for k := 0; k < n; k++ {
			ts := start.Add(time.Duration(k) * step)
			s.Data = append(s.Data, [2]int64{ts.UnixMilli(), int64(1000*i + k)})
		}
		out = append(out, s)
	}
	return out
}

// Between is Steps covering [start, end] inclusive.
func Between(labels []string, start, end time.Time, step time.Duration) []Series {
	return Steps(labels, start, step, int(end.Sub(start)/step)+1)
}

// Callback encodes list as the bandwidth endpoint does: a JSON document whose
// "json" field holds the encoded list, wrapped in a callback call.
func Callback(list []Series) []byte {
	inner, err := json.Marshal(list)
	if err != nil {
		panic(err)
	}
	doc, err := json.Marshal(map[string]string{"json": string(inner)})
	if err != nil {
		panic(err)
	}
	return append(append([]byte("onBandwidthData("), doc...), ");\n"...)
}

// List encodes list as the support endpoint does, appending suffix to every
// label.
func List(list []Series, suffix string) []byte {
	out := make([]Series, len(list))
	for i, s := range list {
		out[i] = s
		if suffix != "" {
			out[i].Label = s.Label + " " + suffix
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		panic(err)
	}
	return b
}
