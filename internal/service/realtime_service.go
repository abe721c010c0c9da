package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/still-there/attendance-api/internal/dto"
	"github.com/still-there/attendance-api/pkg/config"
)

// RealtimeService fans accepted submissions out over Redis pub/sub so every
// dashboard watching a session sees new rows without waiting for the next
// poll. One channel per session.
type RealtimeService struct {
	client *redis.Client
	cfg    config.RealtimeConfig
	logger *zap.Logger
}

// NewRealtimeService constructs the realtime feed. A nil client disables
// publishing and subscribing.
func NewRealtimeService(client *redis.Client, cfg config.RealtimeConfig, logger *zap.Logger) *RealtimeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeService{client: client, cfg: cfg, logger: logger}
}

// Enabled reports whether the feed is wired up.
func (s *RealtimeService) Enabled() bool {
	return s.client != nil && s.cfg.Enabled
}

func (s *RealtimeService) channel(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.cfg.ChannelPrefix, sessionID)
}

// Publish pushes an attendance event onto the session's channel. Failures
// are reported, not fatal: the dashboard still converges via polling.
func (s *RealtimeService) Publish(ctx context.Context, event dto.AttendanceEvent) error {
	if !s.Enabled() {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal attendance event: %w", err)
	}
	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}
	if err := s.client.Publish(ctx, s.channel(event.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish attendance event: %w", err)
	}
	return nil
}

// Subscribe opens a stream of events for one session. The returned cancel
// func must be called to release the underlying subscription; the channel is
// closed when the context ends or the subscription drops.
func (s *RealtimeService) Subscribe(ctx context.Context, sessionID string) (<-chan dto.AttendanceEvent, func(), error) {
	if !s.Enabled() {
		return nil, nil, fmt.Errorf("realtime feed is disabled")
	}
	pubsub := s.client.Subscribe(ctx, s.channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to session channel: %w", err)
	}

	buffer := s.cfg.ClientBuffer
	if buffer <= 0 {
		buffer = 16
	}
	events := make(chan dto.AttendanceEvent, buffer)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event dto.AttendanceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("dropping malformed attendance event",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return events, cancel, nil
}
