// Copyright 2021 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package telemetry parses the OTEL-like log envelope peers append
// telemetry batches to: {resourceLogs:[{scopeLogs:[{logRecords:[R,...]}]}]}.
package telemetry

import (
	"encoding/json"
	"strconv"
	"time"
)

// Record is one parsed logRecords[] entry, flattened for interpreter
// consumption: an attribute map, an integer nanosecond timestamp, and
// the decoded JSON body.
type Record struct {
	Attributes map[string]interface{}
	Timestamp  time.Time
	Body       map[string]interface{}
}

type envelope struct {
	ResourceLogs []struct {
		ScopeLogs []struct {
			LogRecords []rawRecord `json:"logRecords"`
		} `json:"scopeLogs"`
	} `json:"resourceLogs"`
}

type rawRecord struct {
	TimeUnixNano string `json:"timeUnixNano"`
	Attributes   []struct {
		Key   string `json:"key"`
		Value struct {
			StringValue *string  `json:"stringValue"`
			DoubleValue *float64 `json:"doubleValue"`
		} `json:"value"`
	} `json:"attributes"`
	Body struct {
		StringValue string `json:"stringValue"`
	} `json:"body"`
}

// ParseLine decodes one log line into its flattened records. A line that
// is not a valid JSON envelope returns an error; callers (the tailer) log
// and skip it. Individual records are not rejected: an unparsable
// timestamp becomes zero and an unparsable body becomes an empty map.
func ParseLine(line []byte) ([]Record, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, err
	}
	var out []Record
	for _, rl := range env.ResourceLogs {
		for _, sl := range rl.ScopeLogs {
			for _, raw := range sl.LogRecords {
				rec, err := flatten(raw)
				if err != nil {
					continue
				}
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func flatten(raw rawRecord) (Record, error) {
	nanos, err := strconv.ParseInt(raw.TimeUnixNano, 10, 64)
	if err != nil {
		nanos = 0
	}
	rec := Record{
		Attributes: make(map[string]interface{}, len(raw.Attributes)),
		Timestamp:  time.Unix(0, nanos).UTC(),
	}
	for _, a := range raw.Attributes {
		switch {
		case a.Value.StringValue != nil:
			rec.Attributes[a.Key] = *a.Value.StringValue
		case a.Value.DoubleValue != nil:
			rec.Attributes[a.Key] = *a.Value.DoubleValue
		}
	}
	if raw.Body.StringValue != "" {
		var body map[string]interface{}
		if err := json.Unmarshal([]byte(raw.Body.StringValue), &body); err == nil {
			rec.Body = body
		}
	}
	if rec.Body == nil {
		rec.Body = map[string]interface{}{}
	}
	return rec, nil
}

// AttrString returns the string form of an attribute, or "" if absent or
// not string-shaped.
func (r Record) AttrString(key string) string {
	v, ok := r.Attributes[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// BodyString returns the string form of a body field.
func (r Record) BodyString(key string) string {
	v, ok := r.Body[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// EventKind resolves the authoritative event kind: the event_type
// attribute if present, falling back to the body's type field.
func (r Record) EventKind() string {
	if k := r.AttrString("event_type"); k != "" {
		return k
	}
	return r.BodyString("type")
}
