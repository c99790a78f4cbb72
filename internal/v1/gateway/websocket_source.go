package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/callwatch/backend/internal/v1/logging"
	"github.com/callwatch/backend/internal/v1/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wireEnvelope is the minimal shape every gateway frame carries: a
// type discriminator and the raw payload for that type.
type wireEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireCacheReady struct {
	Entries []CacheReadyEntry `json:"entries"`
}

type wireVoiceStateUpdate struct {
	Old *VoiceState `json:"old"`
	New *VoiceState `json:"new"`
}

// WebSocketGatewaySource dials the upstream gateway and decodes its
// JSON event frames. This is a client Dial, not a server Upgrade: the
// process is a gateway consumer, not a WebSocket server.
type WebSocketGatewaySource struct {
	url       string
	token     string
	connected atomic.Bool
}

// NewWebSocketGatewaySource constructs a source that will dial url,
// authenticating with token.
func NewWebSocketGatewaySource(url, token string) *WebSocketGatewaySource {
	return &WebSocketGatewaySource{url: url, token: token}
}

// Connected reports whether the gateway connection is currently up.
// Satisfies health.GatewayChecker.
func (s *WebSocketGatewaySource) Connected() bool {
	return s.connected.Load()
}

// Connect dials the gateway and reads frames until ctx is canceled or
// the connection errors. It does not reconnect; the caller's
// supervising loop is expected to call Connect again after a backoff.
func (s *WebSocketGatewaySource) Connect(ctx context.Context, onReady func([]CacheReadyEntry), onUpdate func(VoiceStateUpdate)) error {
	header := map[string][]string{"Authorization": {"Bearer " + s.token}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		metrics.SetGatewayConnected(false)
		return fmt.Errorf("gateway: dial: %w", err)
	}
	defer conn.Close()
	s.connected.Store(true)
	metrics.SetGatewayConnected(true)
	defer s.connected.Store(false)
	defer metrics.SetGatewayConnected(false)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("gateway: read: %w", err)
		}

		var env wireEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Warn(ctx, "failed to unmarshal gateway frame", zap.Error(err))
			continue
		}

		switch env.Type {
		case "cache_ready":
			var payload wireCacheReady
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				logging.Warn(ctx, "failed to unmarshal cache_ready payload", zap.Error(err))
				continue
			}
			onReady(payload.Entries)

		case "voice_state_update":
			var payload wireVoiceStateUpdate
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				logging.Warn(ctx, "failed to unmarshal voice_state_update payload", zap.Error(err))
				continue
			}
			onUpdate(VoiceStateUpdate{Old: payload.Old, New: payload.New})

		default:
			logging.Warn(ctx, "unknown gateway frame type", zap.String("type", env.Type))
		}
	}
}

// pingInterval is unused directly but documents the expected keepalive
// cadence for the upstream gateway connection.
const pingInterval = 30 * time.Second
