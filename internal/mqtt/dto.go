package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/livecaption/internal/datastore"
)

// UtteranceMessage is the payload published for each finalized utterance
type UtteranceMessage struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Sequence    int       `json:"sequence"`
	Text        string    `json:"text"`
	Translation string    `json:"translation,omitempty"`
	Language    string    `json:"language,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinalizedAt time.Time `json:"finalizedAt"`
	DurationMs  int64     `json:"durationMs"`
}

// NewUtteranceMessage converts a stored utterance to its wire form
func NewUtteranceMessage(u *datastore.Utterance) UtteranceMessage {
	return UtteranceMessage{
		ID:          u.UUID,
		SessionID:   u.SessionID,
		Sequence:    u.Sequence,
		Text:        u.Text,
		Translation: u.Translation,
		Language:    u.Language,
		StartedAt:   u.StartedAt,
		FinalizedAt: u.FinalizedAt,
		DurationMs:  u.FinalizedAt.Sub(u.StartedAt).Milliseconds(),
	}
}

// PublishUtterance publishes u as JSON on the client's default topic
func PublishUtterance(ctx context.Context, c Client, u *datastore.Utterance) error {
	payload, err := json.Marshal(NewUtteranceMessage(u))
	if err != nil {
		return publishError(err, "")
	}
	return c.Publish(ctx, "", payload)
}
