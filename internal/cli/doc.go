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

/*
Package cli provides the root command for the veridia CLI.

This package creates the Cobra command tree and handles global concerns like
version information, persistent flags, and exit codes. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	veridia
	├── transcribe    Upload a recording and print the extracted record
	├── me            Show the signed-in user's profile
	├── auth          login, logout, status
	├── config        show, path, init
	└── version       Show version

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	if err := cli.NewApp().ExecuteContext(ctx); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v     Enable debug logging
	--quiet, -q       Suppress non-error output
	--json            Output in JSON format
	--config          Path to config file
	--trace           Print request spans to stderr
	--metrics-file    Write Prometheus metrics on exit
*/
package cli
