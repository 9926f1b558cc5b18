package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"CoachChat/internal/session"
)

// Digest returns a content hash of a transcript. Identifiers and timestamps are
// ignored, so two transcripts with the same authors and text hash equally.
func Digest(messages []session.Message) string {
	h := sha256.New()
	for _, msg := range messages {
		if msg.IsUser {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Digests remembers the last digest written under each storage key
type Digests struct {
	entries sync.Map
}

// Unchanged reports whether digest equals the one last stored for key
func (d *Digests) Unchanged(key, digest string) bool {
	v, ok := d.entries.Load(key)
	return ok && v.(string) == digest
}

// Store records digest as the latest for key
func (d *Digests) Store(key, digest string) {
	d.entries.Store(key, digest)
}

// Forget drops the digest recorded for key
func (d *Digests) Forget(key string) {
	d.entries.Delete(key)
}
