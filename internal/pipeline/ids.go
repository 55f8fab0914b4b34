package pipeline

import "github.com/google/uuid"

// NewMemoryID returns a fresh opaque memory identifier (format: mem:<uuid>).
func NewMemoryID() string {
	return "mem:" + uuid.NewString()
}

// NewEntityID returns a fresh opaque entity identifier (format: ent:<uuid>).
func NewEntityID() string {
	return "ent:" + uuid.NewString()
}
