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

// Package redact masks sensitive data in log payloads before they leave the process.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// Marker replaces any value reached through a sensitive key.
	Marker = "[REDACTED]"

	// TruncationMarker is appended to strings cut down to TruncateTo runes.
	// It contains whitespace so a truncated string never looks like an email.
	TruncationMarker = "… [truncated]"

	// MaxStringLength is the longest string passed through unchanged.
	MaxStringLength = 300

	// TruncateTo is the number of runes kept from an over-long string.
	TruncateTo = 200

	// maxMaskedRunes caps the asterisks used for an email local part.
	maxMaskedRunes = 6
)

// SensitiveKeys are the key names whose values are always replaced by Marker.
// Matching is case-insensitive and exact.
var SensitiveKeys = []string{
	"password",
	"pass",
	"token",
	"idtoken",
	"accesstoken",
	"refreshtoken",
	"authorization",
	"apikey",
	"api_key",
	"secret",
	"clientsecret",
	"cookie",
	"set-cookie",
}

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Pattern is an optional content rule applied to free-text strings after
// the email and length rules.
type Pattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// BearerPattern masks bearer credentials embedded in free text.
func BearerPattern() Pattern {
	return Pattern{
		Name:        "bearer_token",
		Regex:       regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_\-\.]{20,})`),
		Replacement: "${1}" + Marker,
	}
}

// Option configures a Redactor.
type Option func(*Redactor)

// WithSensitiveKeys adds key names to the sensitive set.
func WithSensitiveKeys(keys ...string) Option {
	return func(r *Redactor) {
		for _, k := range keys {
			r.keys[strings.ToLower(k)] = struct{}{}
		}
	}
}

// WithMarker overrides the replacement used for sensitive keys.
func WithMarker(marker string) Option {
	return func(r *Redactor) {
		r.marker = marker
	}
}

// WithPatterns adds free-text content rules.
func WithPatterns(patterns ...Pattern) Option {
	return func(r *Redactor) {
		r.patterns = append(r.patterns, patterns...)
	}
}

// Redactor applies the redaction ruleset to values. It holds no mutable
// state after construction and is safe for concurrent use.
type Redactor struct {
	keys     map[string]struct{}
	marker   string
	patterns []Pattern
}

// NewRedactor creates a redactor with the default ruleset plus any options.
func NewRedactor(opts ...Option) *Redactor {
	r := &Redactor{
		keys:   make(map[string]struct{}, len(SensitiveKeys)),
		marker: Marker,
	}
	for _, k := range SensitiveKeys {
		r.keys[k] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRedactor = NewRedactor()

// Default returns the shared default redactor.
func Default() *Redactor {
	return defaultRedactor
}

// Redact converts x to a Value, redacts it with the default ruleset and
// returns the plain Go form.
func Redact(x any) any {
	return defaultRedactor.Redact(Of(x)).Interface()
}

// Redact returns a sanitized copy of v. The input is not modified.
func (r *Redactor) Redact(v Value) Value {
	return r.redact(v, "")
}

// IsSensitiveKey reports whether values under key are always masked.
func (r *Redactor) IsSensitiveKey(key string) bool {
	if key == "" {
		return false
	}
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

func (r *Redactor) redact(v Value, keyHint string) Value {
	if v.kind == KindNull {
		return v
	}

	if r.IsSensitiveKey(keyHint) {
		return String(r.marker)
	}

	switch v.kind {
	case KindString:
		return String(r.RedactString(v.s))
	case KindSequence:
		items := make([]Value, len(v.seq))
		for i, item := range v.seq {
			items[i] = r.redact(item, "")
		}
		return Sequence(items...)
	case KindMapping:
		m := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			m[k] = r.redact(item, k)
		}
		return Mapping(m)
	default:
		return v
	}
}

// RedactString applies the content rules to a string that was not reached
// through a sensitive key.
func (r *Redactor) RedactString(s string) string {
	if emailRegex.MatchString(s) {
		return MaskEmail(s)
	}
	if utf8.RuneCountInString(s) > MaxStringLength {
		return truncateRunes(s, TruncateTo) + TruncationMarker
	}
	for _, p := range r.patterns {
		s = p.Regex.ReplaceAllString(s, p.Replacement)
	}
	return s
}

// MaskEmail keeps the first and last rune of the local part and replaces the
// interior with at most six asterisks. The domain is left intact.
// Local parts of two runes or fewer become a single asterisk.
func MaskEmail(s string) string {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}
	local, domain := []rune(s[:at]), s[at+1:]
	if len(local) <= 2 {
		return "*@" + domain
	}
	stars := len(local) - 2
	if stars > maxMaskedRunes {
		stars = maxMaskedRunes
	}
	return string(local[0]) + strings.Repeat("*", stars) + string(local[len(local)-1]) + "@" + domain
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
