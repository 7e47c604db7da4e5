package journal

import (
	"encoding/json"
	"time"
)

// Entry is one journaled send.
type Entry struct {
	ID         int64           `json:"id"`
	UID        string          `json:"uid"`
	Generation uint64          `json:"generation"`
	Reason     string          `json:"reason"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// Summary aggregates the entries of one uid.
type Summary struct {
	UID            string    `json:"uid"`
	Entries        int       `json:"entries"`
	LastGeneration uint64    `json:"last_generation"`
	LastReason     string    `json:"last_reason"`
	LastSeen       time.Time `json:"last_seen"`
}
