// Package responses defines API response types used by the statebridge HTTP handlers.
package responses

import "time"

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
	Role      string    `json:"role"`
	Instances int       `json:"instances"`
}

// StateListResponse lists the live state instances.
type StateListResponse struct {
	UIDs []string `json:"uids"`
}

// JournalResponse carries recent journal entries for one uid.
type JournalResponse struct {
	UID     string `json:"uid"`
	Entries any    `json:"entries"`
}
