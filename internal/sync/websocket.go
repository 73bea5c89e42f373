// Eventscope - Event Discovery and Live Participation Sync Engine
// Copyright 2026 Andrey V. (avoronkov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avoronkov/eventscope

package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/avoronkov/eventscope/internal/logging"
	"github.com/avoronkov/eventscope/internal/metrics"
	"github.com/avoronkov/eventscope/internal/models"
)

// PushClient maintains the WebSocket connection to the backend and
// delivers participant deltas as they arrive. A dropped connection is
// retried with doubling backoff; frames that fail validation are counted
// and discarded without affecting the stream. Connect after Close starts
// a fresh cycle, so the client survives supervisor restarts.
type PushClient struct {
	wsURL string

	conn   *websocket.Conn
	connMu sync.RWMutex

	// stopChan belongs to one Connect/Close cycle. Connect allocates it,
	// Close closes it and resets to nil so the next cycle gets its own.
	stopMu   sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup

	callbackMu sync.RWMutex
	onDelta    func(models.ParticipantDelta)
}

// NewPushClient creates a push client for the given ws:// or wss:// URL.
func NewPushClient(wsURL string) *PushClient {
	return &PushClient{wsURL: wsURL}
}

// SetDeltaCallback registers the function invoked for each valid
// participant frame. Must be set before Connect.
func (c *PushClient) SetDeltaCallback(fn func(models.ParticipantDelta)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onDelta = fn
}

// Connect establishes the WebSocket connection and starts the listener
// and keep-alive goroutines. Subsequent reconnects happen internally.
func (c *PushClient) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}

	c.stopMu.Lock()
	if c.stopChan == nil {
		c.stopChan = make(chan struct{})
	}
	stop := c.stopChan
	c.stopMu.Unlock()

	c.wg.Add(2)
	go c.listen(ctx, stop)
	go c.pingLoop(ctx, stop)

	return nil
}

// dial opens the connection without touching the goroutine lifecycle.
func (c *PushClient) dial(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil // Already connected
	}

	logging.Info().Str("url", c.wsURL).Msg("Connecting to event stream")

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil {
			logging.Debug().Err(cerr).Msg("Failed to close handshake response body")
		}
	}

	c.conn = conn
	logging.Info().Msg("[event-ws] Connected")
	return nil
}

// listen processes incoming frames and drives reconnection.
func (c *PushClient) listen(ctx context.Context, stop <-chan struct{}) {
	defer c.wg.Done()

	reconnectDelay := 1 * time.Second
	maxReconnectDelay := 32 * time.Second

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("[event-ws] Listener stopping (context canceled)")
			return
		case <-stop:
			logging.Info().Msg("[event-ws] Listener stopping (stop signal)")
			return
		default:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				// Connection lost - attempt reconnect with cancellable wait
				logging.Info().Dur("delay", reconnectDelay).Msg("Event stream lost, reconnecting...")
				select {
				case <-time.After(reconnectDelay):
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
				reconnectDelay *= 2
				if reconnectDelay > maxReconnectDelay {
					reconnectDelay = maxReconnectDelay
				}

				if err := c.dial(ctx); err != nil {
					logging.Warn().Err(err).Msg("Reconnection failed")
					continue
				}
				metrics.WSReconnects.Inc()
				reconnectDelay = 1 * time.Second // Reset on success
				continue
			}

			if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
				logging.Debug().Err(err).Msg("Failed to set read deadline")
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Info().Msg("[event-ws] Connection closed normally")
				} else if ctx.Err() != nil {
					return
				} else {
					logging.Warn().Err(err).Msg("Read error")
				}
				c.closeConnection()
				continue
			}

			reconnectDelay = 1 * time.Second // Reset on successful read
			c.handleFrame(message)
		}
	}
}

// handleFrame parses a single frame and hands the delta to the callback.
func (c *PushClient) handleFrame(data []byte) {
	var frame models.ParticipantFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		metrics.WSFramesDropped.Inc()
		logging.Debug().Err(err).Msg("Dropping unparseable frame")
		return
	}

	delta, ok := frame.Delta()
	if !ok {
		metrics.WSFramesDropped.Inc()
		logging.Debug().Str("type", frame.Type).Msg("Dropping invalid frame")
		return
	}

	c.callbackMu.RLock()
	fn := c.onDelta
	c.callbackMu.RUnlock()

	if fn != nil {
		fn(delta)
	}
}

// pingLoop keeps the connection alive between frames.
func (c *PushClient) pingLoop(ctx context.Context, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			var err error
			if conn != nil {
				err = conn.WriteControl(
					websocket.PingMessage,
					nil,
					time.Now().Add(5*time.Second),
				)
			}
			c.connMu.Unlock()

			if conn != nil && err != nil {
				logging.Warn().Err(err).Msg("Keep-alive failed")
				c.closeConnection()
			}
		}
	}
}

// closeConnection safely closes the WebSocket connection.
func (c *PushClient) closeConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		if err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(1*time.Second),
		); err != nil {
			logging.Debug().Err(err).Msg("Failed to send close message")
		}

		if err := c.conn.Close(); err != nil {
			logging.Debug().Err(err).Msg("Failed to close connection")
		}
		c.conn = nil
	}
}

// Close stops the listener goroutines and closes the connection. Safe to
// call repeatedly and before any successful Connect; a later Connect
// starts a fresh cycle.
func (c *PushClient) Close() error {
	c.stopMu.Lock()
	stop := c.stopChan
	c.stopChan = nil
	c.stopMu.Unlock()

	if stop == nil {
		return nil
	}

	logging.Info().Msg("[event-ws] Closing push client...")

	close(stop)
	c.closeConnection()
	c.wg.Wait()

	logging.Info().Msg("[event-ws] Push client closed")
	return nil
}

// IsConnected reports whether the WebSocket is currently up.
func (c *PushClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}
