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

package log

import (
	"context"
)

// Transport delivers log events to a sink.
type Transport interface {
	// Log delivers or enqueues evt. Implementations must not modify evt.
	Log(ctx context.Context, evt *Event) error
}

// Flusher is implemented by transports that buffer events.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Closer is implemented by transports that hold background resources.
type Closer interface {
	Close(ctx context.Context) error
}
