package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique capture session ID with the "cap_" prefix
func NewSessionID() string {
	return "cap_" + uuid.New().String()
}

// NewSnapshotID generates a unique debug snapshot ID with the "snap_" prefix
func NewSnapshotID() string {
	return "snap_" + uuid.New().String()
}
