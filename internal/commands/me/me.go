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

package me

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/veridia-health/veridia/internal/commands/shared"
)

// NewCommand creates the me command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user's profile",
		Args:  cobra.NoArgs,
		RunE:  shared.WithEnv("me", runMe),
	}
}

func runMe(ctx context.Context, env *shared.Env, _ []string) error {
	svc, err := env.Transcription(ctx)
	if err != nil {
		return err
	}

	profile, err := svc.GetMe(ctx)
	if err != nil {
		return shared.Classify("fetch profile", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(env.Out, struct {
			shared.JSONResponse
			Profile map[string]any `json:"profile"`
		}{
			JSONResponse: shared.OK("me"),
			Profile:      profile,
		})
	}

	keys := make([]string, 0, len(profile))
	for k := range profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintln(env.Out, shared.RenderKV(k, fmt.Sprint(profile[k])))
	}
	return nil
}
