package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns prefix-<uuid>. If the random source fails the id falls back to
// the current time, which is unique enough for audit and request ids.
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return prefix + "-" + id.String()
}
