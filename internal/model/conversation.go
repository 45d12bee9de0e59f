package model

import "time"

// Conversation states of a patient.
const (
	StateIdle              = "idle"
	StateAwaitingAnswer    = "awaiting_answer"
	StateEmergencyDetected = "emergency_detected"
)

// ChatMessage is one entry of the Redis-held history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the explicit per-user conversation record.
type SessionState struct {
	State        string    `json:"state"`
	LastSeverity int       `json:"last_severity"`
	UpdatedAt    time.Time `json:"updated_at"`
}
