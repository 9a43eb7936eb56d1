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
Package tracing provides request IDs and OpenTelemetry setup for outbound
API calls.

# Request IDs

Every logical API call gets a RequestID. It is attached to each log line for
the call and sent to the backend in the X-Request-Id header so server-side
logs can be joined with ours:

	id := tracing.NewRequestID()
	tracing.InjectIntoRequest(req, id)

IDs are random UUIDs. If the system random source fails, a
"req_<base36 millis>_<6 base36 chars>" string is used instead.

# Spans

NewProvider installs a global tracer provider and the W3C Trace Context
propagator. The CLI enables the stdout exporter with --trace:

	provider, err := tracing.NewProvider(tracing.Config{
	    ServiceName: "veridia",
	    Exporter:    tracing.ExporterStdout,
	})
	defer provider.Shutdown(ctx)
*/
package tracing
