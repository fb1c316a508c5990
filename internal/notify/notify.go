// Package notify records user notifications. The in-app channel is persisted;
// other channels are handed to the log until a delivery transport exists.
package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/safar/petplace/internal/metrics"
)

const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelSMS   = "sms"
)

type Message struct {
	UserID   int64
	Type     string
	Title    string
	Body     string
	Channels []string
	Data     map[string]any
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewService(db *sql.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) Send(ctx context.Context, msg Message) error {
	channels := msg.Channels
	if len(channels) == 0 {
		channels = []string{ChannelInApp}
	}

	data := msg.Data
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, body, channels, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		msg.UserID, msg.Type, msg.Title, msg.Body, pq.Array(channels), payload)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(msg.Type, "error").Inc()
		return fmt.Errorf("store notification: %w", err)
	}

	for _, ch := range channels {
		if ch == ChannelInApp {
			continue
		}
		s.logger.Info("notification queued for external channel",
			zap.String("channel", ch),
			zap.Int64("user_id", msg.UserID),
			zap.String("type", msg.Type))
	}

	metrics.NotificationsSent.WithLabelValues(msg.Type, "ok").Inc()
	return nil
}
