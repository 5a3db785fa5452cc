// Package dedup derives stable identities for ingested items and tracks
// which of them have already been turned into tasks.
package dedup

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/user/deskhand/internal/types"
)

// DefaultPreviewChars is how much of a preview contributes to a message key.
const DefaultPreviewChars = 20

// MessageKey derives the key of a chat message from its conversation title
// and the first previewChars runes of its preview. The same title and
// preview prefix always give the same key.
func MessageKey(channel, title, preview string, previewChars int) types.DedupKey {
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}
	prefix := []rune(preview)
	if len(prefix) > previewChars {
		prefix = prefix[:previewChars]
	}
	sum := blake3.Sum256([]byte(strings.TrimSpace(title) + "_" + string(prefix)))
	return types.DedupKey(channel + ":" + hex.EncodeToString(sum[:16]))
}

// EmailKey uses the provider's message id as the key.
func EmailKey(id string) types.DedupKey {
	return types.DedupKey("email:" + id)
}
