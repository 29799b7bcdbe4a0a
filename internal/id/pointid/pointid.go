// Package pointid derives deterministic vector-store point IDs so
// re-ingestion of unchanged content is idempotent.
package pointid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/sitecrawl/internal/hash/md5"
)

// Key identifies one chunk of one page.
type Key struct {
	ContentType string
	Domain      string
	Title       string
	URL         string
	ChunkIndex  int
}

// New returns a name-based UUID for key. The same key always yields the same
// ID, so upserting a re-crawled unchanged page overwrites rather than
// duplicates.
func New(key Key) string {
	name := fmt.Sprintf("%s|%s|%s|%s|%d",
		key.ContentType,
		key.Domain,
		key.Title,
		md5.Sum([]byte(key.URL)),
		key.ChunkIndex,
	)
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(name)).String()
}
