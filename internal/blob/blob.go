// Package blob stores attachment payloads outside the relational store,
// addressed by a {messageID}/{attachmentID}/{filename} key convention.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no blob exists under the given key.
var ErrNotFound = errors.New("blob not found")

// Store is the payload storage contract. A metadata row referencing a key
// is only written after Put succeeds, so readers never observe metadata for
// a missing blob; an orphaned blob with no metadata is tolerable.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Key builds the canonical storage key for an attachment payload.
func Key(messageID, attachmentID, filename string) string {
	if filename == "" {
		filename = "attachment"
	}
	return fmt.Sprintf("%s/%s/%s", messageID, attachmentID, sanitizeFilename(filename))
}

// sanitizeFilename strips path separators so a hostile filename cannot
// escape its key prefix.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" {
		return "attachment"
	}
	return name
}
