package ticker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/pipeline"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/websocket"
)

// StatusMessage is the periodic heartbeat sent to subscribers
type StatusMessage struct {
	Timestamp  string `json:"timestamp"`
	ServerTime int64  `json:"serverTime"`
	Clients    int    `json:"clients"`

	// Empty until a dataset is loaded
	DatasetID  string `json:"datasetId,omitempty"`
	Generation uint64 `json:"generation"`
	Filtered   int    `json:"filtered"`
}

// SnapshotSource exposes the current snapshot
type SnapshotSource interface {
	Snapshot() *pipeline.Snapshot
}

// Ticker periodically broadcasts a status heartbeat to the hub so clients
// can detect a stale connection or a missed snapshot
type Ticker struct {
	hub      *websocket.Hub
	source   SnapshotSource
	interval time.Duration
	logger   zerolog.Logger
}

// NewTicker creates a new Ticker
func NewTicker(hub *websocket.Hub, source SnapshotSource, interval time.Duration, logger zerolog.Logger) *Ticker {
	return &Ticker{
		hub:      hub,
		source:   source,
		interval: interval,
		logger:   logger.With().Str("component", "ticker").Logger(),
	}
}

// Start begins broadcasting status updates until ctx is done
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("ticker started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("ticker stopped")
			return

		case now := <-ticker.C:
			message := t.status(now)

			data, err := websocket.Encode(websocket.MessageStatus, message)
			if err != nil {
				t.logger.Error().Err(err).Msg("failed to marshal status message")
				continue
			}

			t.hub.Broadcast(data)
			t.logger.Debug().
				Uint64("generation", message.Generation).
				Int("clients", message.Clients).
				Msg("broadcasted status")
		}
	}
}

func (t *Ticker) status(now time.Time) StatusMessage {
	msg := StatusMessage{
		Timestamp:  now.Format(time.RFC3339),
		ServerTime: now.Unix(),
		Clients:    t.hub.ClientCount(),
	}
	if snap := t.source.Snapshot(); snap != nil {
		msg.DatasetID = snap.DatasetID
		msg.Generation = snap.Generation
		msg.Filtered = snap.Totals.Total
	}
	return msg
}
