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

package shared

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// closeTimeout bounds the final log and span flush.
const closeTimeout = 5 * time.Second

// RunFunc is the body of a command that needs an Env.
type RunFunc func(ctx context.Context, env *Env, args []string) error

// WithEnv adapts fn to a cobra RunE. It builds the Env, runs fn and always
// flushes on the way out. In --json mode a failure is also written to
// stdout as an error envelope.
func WithEnv(command string, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		env, err := Setup(cmd)
		if err != nil {
			return reportJSON(cmd, command, err)
		}

		runErr := fn(ctx, env, args)

		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := env.Close(closeCtx); err != nil && GetVerbose() {
			cmd.PrintErrln(RenderWarn("flush: " + err.Error()))
		}

		return reportJSON(cmd, command, runErr)
	}
}

func reportJSON(cmd *cobra.Command, command string, err error) error {
	if err != nil && GetJSON() {
		_ = EmitJSONError(cmd.OutOrStdout(), command, err)
	}
	return err
}
