package common

import (
	"github.com/google/uuid"
)

// NewCommandID generates a unique id for an operator command
// Format: cmd_<uuid>
func NewCommandID() string {
	return "cmd_" + uuid.New().String()
}

// NewInstanceID identifies one server process to websocket clients
func NewInstanceID() string {
	return uuid.New().String()
}
