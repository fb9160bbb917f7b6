package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique scrape job ID
func NewJobID() string {
	return uuid.New().String()
}

// NewRequestID generates an id used to correlate HTTP log lines
func NewRequestID() string {
	return uuid.New().String()
}
