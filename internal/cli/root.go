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

package cli

import (
	"github.com/spf13/cobra"

	authcmd "github.com/veridia-health/veridia/internal/commands/auth"
	configcmd "github.com/veridia-health/veridia/internal/commands/config"
	"github.com/veridia-health/veridia/internal/commands/me"
	"github.com/veridia-health/veridia/internal/commands/shared"
	"github.com/veridia-health/veridia/internal/commands/transcribe"
	versioncmd "github.com/veridia-health/veridia/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// NewRootCommand creates the root Cobra command with global flags and no
// subcommands.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "veridia",
		Short: "Veridia - clinical transcription from the command line",
		Long: `Veridia uploads consultation recordings to the Veridia backend and prints
the clinical record extracted from them.

Run 'veridia auth login' to sign in, then 'veridia transcribe <file>'.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	flags := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(flags.Verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(flags.Quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(flags.JSON, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(flags.Config, "config", "", "Path to config file (default: ~/.config/veridia/config.yaml)")
	cmd.PersistentFlags().BoolVar(flags.Trace, "trace", false, "Print request spans to stderr")
	cmd.PersistentFlags().StringVar(flags.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	return cmd
}

// NewApp creates the root command with every subcommand attached.
func NewApp() *cobra.Command {
	root := NewRootCommand()
	root.AddCommand(transcribe.NewCommand())
	root.AddCommand(me.NewCommand())
	root.AddCommand(authcmd.NewCommand())
	root.AddCommand(configcmd.NewCommand())
	root.AddCommand(versioncmd.NewCommand())
	return root
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
