// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transcription

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/veridia-health/veridia/internal/api"
)

// Section is one top-level member of an extracted record.
type Section struct {
	Name  string
	Value any
}

// Record is the result of a transcription. For JSON objects the members
// are kept in the order the backend sent them.
type Record struct {
	raw      json.RawMessage
	value    any
	sections []Section
}

func newRecord(resp *api.Response) (*Record, error) {
	if !resp.IsJSON() {
		return &Record{value: resp.Text()}, nil
	}
	body := bytes.TrimSpace(resp.Bytes())
	if len(body) == 0 {
		return &Record{}, nil
	}

	raw := unwrapExtracted(body)
	rec := &Record{raw: raw}
	if err := json.Unmarshal(raw, &rec.value); err != nil {
		return nil, &api.Error{
			Type:      api.ErrorTypeDecode,
			Message:   "invalid transcription payload",
			RequestID: resp.RequestID,
			Cause:     err,
		}
	}
	sections, err := orderedSections(raw)
	if err != nil {
		return nil, &api.Error{
			Type:      api.ErrorTypeDecode,
			Message:   "invalid transcription payload",
			RequestID: resp.RequestID,
			Cause:     err,
		}
	}
	rec.sections = sections
	return rec, nil
}

// Value returns the decoded payload: a map, slice, scalar, or the response
// text for non-JSON replies.
func (r *Record) Value() any {
	return r.value
}

// Sections returns the top-level members in server order. It is empty when
// the payload is not a JSON object.
func (r *Record) Sections() []Section {
	return r.sections
}

// Section returns the named member.
func (r *Record) Section(name string) (any, bool) {
	for _, s := range r.sections {
		if s.Name == name {
			return s.Value, true
		}
	}
	return nil, false
}

// JSON returns the payload as JSON, or nil for non-JSON replies.
func (r *Record) JSON() json.RawMessage {
	return r.raw
}

// Decode unmarshals the payload into v.
func (r *Record) Decode(v any) error {
	if r.raw == nil {
		return fmt.Errorf("record has no JSON payload")
	}
	return json.Unmarshal(r.raw, v)
}

func orderedSections(raw json.RawMessage) ([]Section, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil
	}

	var sections []Section
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		sections = append(sections, Section{Name: name, Value: v})
	}
	return sections, nil
}
