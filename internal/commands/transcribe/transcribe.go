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

// Package transcribe implements the transcribe command.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/veridia-health/veridia/internal/commands/shared"
	"github.com/veridia-health/veridia/internal/transcription"
)

type options struct {
	simple     bool
	mode       string
	output     string
	noValidate bool
}

// NewCommand creates the transcribe command.
func NewCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a consultation recording",
		Long: `Upload an audio recording and print the clinical record extracted from it.

The complete analysis extracts every section of the record. The simple
analysis (--simple) is faster and returns a summary.`,
		Example: `  veridia transcribe consulta.wav
  veridia transcribe consulta.mp3 --simple
  veridia transcribe consulta.wav --json --output record.json`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = shared.WithEnv("transcribe", func(ctx context.Context, env *shared.Env, args []string) error {
		return run(ctx, env, args[0], opts)
	})

	cmd.Flags().BoolVar(&opts.simple, "simple", false, "Use the simple analysis")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Analysis mode: complete or simple (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Also write the record as JSON to this file")
	cmd.Flags().BoolVar(&opts.noValidate, "no-validate", false, "Skip local format and size checks")
	cmd.MarkFlagsMutuallyExclusive("simple", "mode")

	return cmd
}

func (o *options) resolveMode(configured string) (transcription.Mode, error) {
	if o.simple {
		return transcription.ModeSimple, nil
	}
	if o.mode != "" {
		return transcription.ParseMode(o.mode)
	}
	return transcription.ParseMode(configured)
}

func run(ctx context.Context, env *shared.Env, path string, opts *options) error {
	mode, err := opts.resolveMode(env.Config.Transcription.Mode)
	if err != nil {
		return shared.NewInvalidInputError("invalid mode", err)
	}

	audio, err := transcription.ReadAudio(path)
	if err != nil {
		return shared.NewInvalidInputError("cannot read audio file", err)
	}
	if !opts.noValidate {
		if err := transcription.Validate(audio, env.Config.UploadLimits(), env.Logger); err != nil {
			return shared.Classify("audio file rejected", err)
		}
	}

	svc, err := env.Transcription(ctx)
	if err != nil {
		return err
	}

	if !shared.GetJSON() && !shared.GetQuiet() {
		fmt.Fprintln(env.Err, shared.Muted.Render(fmt.Sprintf("Uploading %s (%s analysis)...", audio.Filename, mode)))
	}

	record, err := svc.ProcessAudio(ctx, audio, mode)
	if err != nil {
		return shared.Classify("transcription failed", err)
	}

	if opts.output != "" {
		if err := writeRecord(opts.output, record); err != nil {
			return fmt.Errorf("write %s: %w", opts.output, err)
		}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(env.Out, struct {
			shared.JSONResponse
			Mode   transcription.Mode `json:"mode"`
			File   string             `json:"file"`
			Record any                `json:"record"`
		}{
			JSONResponse: shared.OK("transcribe"),
			Mode:         mode,
			File:         audio.Filename,
			Record:       record.Value(),
		})
	}

	printRecord(env.Out, record)
	return nil
}

func writeRecord(path string, record *transcription.Record) error {
	data := record.JSON()
	if data == nil {
		var err error
		if data, err = json.Marshal(record.Value()); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// printRecord renders sections in server order. Non-object payloads are
// printed as-is.
func printRecord(w io.Writer, record *transcription.Record) {
	sections := record.Sections()
	if len(sections) == 0 {
		writeValue(w, record.Value(), 0)
		return
	}
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, shared.RenderSection(s.Name))
		writeValue(w, s.Value, 1)
	}
}

func writeValue(w io.Writer, v any, depth int) {
	pad := strings.Repeat("  ", depth)
	switch val := v.(type) {
	case nil:
		fmt.Fprintln(w, pad+shared.Muted.Render("(none)"))
	case string:
		for _, line := range strings.Split(strings.TrimSpace(val), "\n") {
			fmt.Fprintln(w, pad+line)
		}
	case []any:
		if len(val) == 0 {
			fmt.Fprintln(w, pad+shared.Muted.Render("(none)"))
		}
		for _, item := range val {
			if isScalar(item) {
				fmt.Fprintf(w, "%s- %s\n", pad, scalar(item))
				continue
			}
			fmt.Fprintln(w, pad+"-")
			writeValue(w, item, depth+1)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if isScalar(val[k]) {
				fmt.Fprintln(w, pad+shared.RenderKV(shared.SectionTitle(k), scalar(val[k])))
				continue
			}
			fmt.Fprintln(w, pad+shared.Muted.Render(shared.SectionTitle(k)+":"))
			writeValue(w, val[k], depth+1)
		}
	default:
		fmt.Fprintln(w, pad+scalar(val))
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return false
	default:
		return true
	}
}

func scalar(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case bool:
		if val {
			return "sí"
		}
		return "no"
	default:
		return fmt.Sprint(val)
	}
}
