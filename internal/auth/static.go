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

package auth

import (
	"context"
	"os"

	"github.com/veridia-health/veridia/internal/api"
)

// EnvToken is the environment variable read by EnvProvider.
const EnvToken = "VERIDIA_TOKEN"

// Static returns a provider that always hands out token and cannot refresh.
// A 401 therefore ends the call with a refresh failure.
func Static(token string) api.TokenProvider {
	return api.TokenProviderFunc(func(_ context.Context, forceRefresh bool) (string, error) {
		if forceRefresh {
			return "", nil
		}
		return token, nil
	})
}

// EnvProvider reads the token from the named variable (default
// VERIDIA_TOKEN) on every call.
func EnvProvider(name string) api.TokenProvider {
	if name == "" {
		name = EnvToken
	}
	return api.TokenProviderFunc(func(_ context.Context, forceRefresh bool) (string, error) {
		if forceRefresh {
			return "", nil
		}
		return os.Getenv(name), nil
	})
}
