package datastore

import "time"

// Utterance is one finalized utterance of a session
type Utterance struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UUID        string    `gorm:"uniqueIndex;size:36" json:"id"`
	SessionID   string    `gorm:"index;size:36" json:"session_id"`
	Sequence    int       `json:"sequence"` // position within the session, from 1
	Text        string    `gorm:"type:text" json:"text"`
	Translation string    `gorm:"type:text" json:"translation,omitempty"`
	Language    string    `gorm:"size:16" json:"language,omitempty"` // translation target
	StartedAt   time.Time `json:"started_at"`
	FinalizedAt time.Time `gorm:"index" json:"finalized_at"`
	Samples     int       `json:"samples"` // samples archived for the utterance
}
