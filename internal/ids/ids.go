// Package ids generates identifiers for turns, tasks, and artifacts, mirroring
// the teacher's uuid.NewString() usage throughout loop.go/runtime.go.
package ids

import "github.com/google/uuid"

// New returns a random v4 UUID string.
func New() string {
	return uuid.NewString()
}
