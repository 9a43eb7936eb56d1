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
Package api is the authenticated HTTP client for the Veridia backend.

A Client is bound to one base URL and one TokenProvider and is immutable
after New. Construct one per process or per signed-in session and pass it to
the code that needs it:

	client, err := api.New(api.Config{
	    BaseURL:       cfg.API.BaseURL,
	    TokenProvider: session,
	    Logger:        logger,
	})
	resp, err := client.Get(ctx, "me")

Each call sends "Authorization: Bearer <token>" and an X-Request-Id header.
If the first attempt returns 401, the client asks the provider for a forced
refresh and retries once with the same request ID. Every attempt has its own
timeout.

Failures are *Error values classified by ErrorType. Use errors.Is with
ErrNoAuthToken and ErrNoAuthTokenRefresh, or TypeOf and StatusCode.
*/
package api
