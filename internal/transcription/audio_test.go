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
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	limits := Limits{Types: []string{"audio/wav"}, MaxSize: 64}

	tests := []struct {
		name    string
		audio   Audio
		wantErr error
		wantLog string
	}{
		{"valid", Audio{Data: wavData}, nil, "valid_file"},
		{"empty", Audio{}, ErrEmpty, "empty_file"},
		{"wrong type", Audio{Data: []byte("hola mundo")}, ErrUnsupportedType, "invalid_type"},
		{"declared type wins", Audio{Data: []byte("hola"), ContentType: "audio/wav"}, nil, "valid_file"},
		{"too big", Audio{Data: append(append([]byte{}, wavData...), make([]byte, 64)...)}, ErrTooLarge, "too_big"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			logger := newTestLogger(rec)

			err := Validate(tt.audio, limits, logger)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			evt := rec.find(tt.wantLog)
			if evt == nil {
				t.Fatalf("expected %q log event", tt.wantLog)
			}
			if evt.Context["scope"] != "files.validation" {
				t.Errorf("scope = %v, want files.validation", evt.Context["scope"])
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	l.Types[0] = "changed"
	if DefaultTypes[0] == "changed" {
		t.Error("DefaultLimits must not share the DefaultTypes backing array")
	}
	if err := Validate(Audio{Data: wavData}, DefaultLimits(), nil); err != nil {
		t.Errorf("Validate(wav) error = %v", err)
	}
}
