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

// Package transcription wraps the clinical transcription endpoints of the
// Veridia backend.
package transcription

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/veridia-health/veridia/internal/api"
	"github.com/veridia-health/veridia/internal/log"
)

// LogScope is the scope attached to transcription log events.
const LogScope = "api.transcription"

// FileField is the multipart field carrying the audio.
const FileField = "file"

// Mode selects the analysis performed on uploaded audio.
type Mode string

const (
	// ModeComplete runs the full clinical extraction.
	ModeComplete Mode = "complete"
	// ModeSimple runs the lightweight analysis.
	ModeSimple Mode = "simple"
)

// ParseMode parses a mode name. The empty string is ModeComplete.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeComplete:
		return ModeComplete, nil
	case ModeSimple:
		return ModeSimple, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeComplete, ModeSimple)
	}
}

func (m Mode) endpoint() string {
	if m == ModeSimple {
		return "transcribe-simple"
	}
	return "transcribe"
}

// Service calls the transcription API through an authenticated client.
type Service struct {
	client *api.Client
	logger *log.Logger
}

// NewService creates a service. A nil logger discards events.
func NewService(client *api.Client, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		client: client,
		logger: logger.Scoped(LogScope),
	}
}

// ProcessAudio uploads audio for analysis and returns the extracted record.
// When the response wraps its result in extracted_data, the wrapped value
// is returned.
func (s *Service) ProcessAudio(ctx context.Context, audio Audio, mode Mode) (*Record, error) {
	if mode == "" {
		mode = ModeComplete
	}
	contentType := audio.mimeType()

	s.logger.Info("transcribe_start",
		"mime", contentType,
		"size", len(audio.Data),
		"mode", string(mode),
	)

	form := api.NewForm().AddFileWithType(FileField, audio.filename(), contentType, audio.Data)
	resp, err := s.client.Post(ctx, mode.endpoint(), form)
	if err != nil {
		s.failed(err, mode)
		return nil, err
	}

	rec, err := newRecord(resp)
	if err != nil {
		s.failed(err, mode)
		return nil, err
	}

	s.logger.Info("transcribe_success", "mode", string(mode))
	return rec, nil
}

func (s *Service) failed(err error, mode Mode) {
	args := []any{"message", err.Error()}
	if status := api.StatusCode(err); status != 0 {
		args = append(args, "status", status)
	}
	args = append(args, "mode", string(mode))
	s.logger.Warn("transcribe_failed", args...)
}

// Profile is the signed-in user's backend profile.
type Profile map[string]any

// String returns the string value stored under key, or "".
func (p Profile) String(key string) string {
	v, _ := p[key].(string)
	return v
}

// GetMe fetches the current user's profile.
func (s *Service) GetMe(ctx context.Context) (Profile, error) {
	resp, err := s.client.Get(ctx, "me")
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := resp.Decode(&p); err != nil {
		return nil, err
	}
	if p == nil {
		p = Profile{}
	}
	return p, nil
}

// unwrapExtracted returns the extracted_data member of a JSON object, or
// raw itself when the member is absent or null.
func unwrapExtracted(raw json.RawMessage) json.RawMessage {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return raw
	}
	inner, ok := envelope["extracted_data"]
	if !ok || string(inner) == "null" {
		return raw
	}
	return inner
}
