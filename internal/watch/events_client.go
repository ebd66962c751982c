// Copyright 2026 The Palisade Authors
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

package watch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/holt/palisade/internal/audit"
)

const (
	// serverIdleTimeout is how long the feed may go silent before the
	// connection is considered dead. The gate pings every 30 seconds.
	serverIdleTimeout = 90 * time.Second

	reconnectDelay = 2 * time.Second
)

// serverTailer subscribes to a running gate's WebSocket event feed
// instead of tailing a file, reconnecting when the stream drops.
type serverTailer struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

func newServerTailer(server, token string) *serverTailer {
	return &serverTailer{
		url:    eventsURL(server),
		token:  token,
		dialer: websocket.DefaultDialer,
	}
}

// eventsURL normalizes a server address into the feed's ws:// URL.
func eventsURL(server string) string {
	s := strings.TrimSpace(server)
	switch {
	case strings.HasPrefix(s, "ws://"), strings.HasPrefix(s, "wss://"):
	case strings.HasPrefix(s, "http://"):
		s = "ws://" + strings.TrimPrefix(s, "http://")
	case strings.HasPrefix(s, "https://"):
		s = "wss://" + strings.TrimPrefix(s, "https://")
	default:
		s = "ws://" + s
	}
	return strings.TrimRight(s, "/") + "/v1/events"
}

func (t *serverTailer) start(ctx context.Context) <-chan tailerEvent {
	out := make(chan tailerEvent, 128)

	go func() {
		defer close(out)
		for {
			if err := t.stream(ctx, out); err != nil {
				select {
				case out <- tailerEvent{err: err}:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return out
}

// stream holds one connection open and forwards events until it drops.
func (t *serverTailer) stream(ctx context.Context, out chan<- tailerEvent) error {
	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return fmt.Errorf("watch: connect %s: %s", t.url, resp.Status)
		}
		return fmt.Errorf("watch: connect %s: %w", t.url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// The gate pings; answering refreshes our idle deadline.
	conn.SetReadDeadline(time.Now().Add(serverIdleTimeout))
	conn.SetPingHandler(func(message string) error {
		conn.SetReadDeadline(time.Now().Add(serverIdleTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(10*time.Second))
	})

	for {
		var evt audit.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: read event feed: %w", err)
		}
		select {
		case out <- tailerEvent{event: evt}:
		case <-ctx.Done():
			return nil
		}
	}
}
