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
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/veridia-health/veridia/internal/api"
	"github.com/veridia-health/veridia/internal/log"
)

// Audio is a recording to upload.
type Audio struct {
	// Filename is sent as the multipart file name.
	Filename string

	// Data is the raw recording.
	Data []byte

	// ContentType overrides MIME detection when set.
	ContentType string
}

// ReadAudio loads a recording from disk and sniffs its MIME type.
func ReadAudio(path string) (Audio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Audio{}, fmt.Errorf("read audio: %w", err)
	}
	return Audio{
		Filename:    filepath.Base(path),
		Data:        data,
		ContentType: api.DetectContentType(data),
	}, nil
}

func (a Audio) mimeType() string {
	if a.ContentType != "" {
		return a.ContentType
	}
	return api.DetectContentType(a.Data)
}

func (a Audio) filename() string {
	if a.Filename != "" {
		return a.Filename
	}
	return "audio"
}

// DefaultMaxSize is the largest upload accepted by default (50 MiB).
const DefaultMaxSize = 50 << 20

// DefaultTypes are the audio formats the backend accepts.
var DefaultTypes = []string{
	"audio/wav",
	"audio/x-wav",
	"audio/mpeg",
	"audio/mp4",
	"audio/x-m4a",
	"audio/ogg",
	"audio/webm",
	"video/webm",
	"audio/flac",
}

var (
	// ErrUnsupportedType reports an audio format outside the allowed list.
	ErrUnsupportedType = errors.New("unsupported audio format")

	// ErrTooLarge reports a recording above the size limit.
	ErrTooLarge = errors.New("audio file too large")

	// ErrEmpty reports a recording with no data.
	ErrEmpty = errors.New("audio file is empty")
)

// Limits constrain what Validate accepts.
type Limits struct {
	Types   []string
	MaxSize int64
}

// DefaultLimits returns the upload limits used by the CLI.
func DefaultLimits() Limits {
	return Limits{Types: slices.Clone(DefaultTypes), MaxSize: DefaultMaxSize}
}

// Validate checks audio against limits before upload. Rejections are
// logged at warn under the files.validation scope.
func Validate(audio Audio, limits Limits, logger *log.Logger) error {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.Scoped("files.validation")

	if len(audio.Data) == 0 {
		logger.Warn("empty_file", "name", audio.filename())
		return ErrEmpty
	}

	mime := audio.mimeType()
	if len(limits.Types) > 0 && !slices.Contains(limits.Types, mime) {
		logger.Warn("invalid_type", "mime", mime, "allowed", limits.Types)
		return fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}

	size := int64(len(audio.Data))
	if limits.MaxSize > 0 && size > limits.MaxSize {
		logger.Warn("too_big", "size", size, "max", limits.MaxSize)
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, size, limits.MaxSize)
	}

	logger.Debug("valid_file", "mime", mime, "size", size)
	return nil
}
