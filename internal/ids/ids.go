package ids

import "github.com/segmentio/ksuid"

// New returns a time-sortable, URL-safe identifier.
func New() string {
	return ksuid.New().String()
}

