package tool

import "github.com/google/uuid"

// GenerateRequestID tags outgoing collaborator requests for log correlation.
func GenerateRequestID() string {
	return uuid.New().String()
}

// GenerateSessionID returns a short id for one console session.
func GenerateSessionID() string {
	return uuid.New().String()[:8]
}
