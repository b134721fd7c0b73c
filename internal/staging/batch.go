package staging

import (
	"strings"
	"time"

	"bm-go/internal/bm"
)

// stagedBatch is one capture: the candidates and when they stop being
// poppable. It is the unit persisted by a stagingStore.
type stagedBatch struct {
	Items     []bm.Candidate `json:"items"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (b *stagedBatch) expired(now time.Time) bool {
	return !now.Before(b.ExpiresAt)
}

// normalize drops candidates without a url and gives untitled ones their url
// as title.
func normalize(items []bm.Candidate) []bm.Candidate {
	out := make([]bm.Candidate, 0, len(items))
	for _, c := range items {
		c.URL = strings.TrimSpace(c.URL)
		if c.URL == "" {
			continue
		}
		if strings.TrimSpace(c.Title) == "" {
			c.Title = c.URL
		}
		out = append(out, c)
	}
	return out
}
