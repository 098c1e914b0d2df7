package enum

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownContentKind is returned when a content kind value cannot be resolved.
var ErrUnknownContentKind = errors.New("unknown content kind")

// ContentKind identifies the type of a content item in a group feed.
// Values are stored as-is in the database, so they must remain stable.
type ContentKind string

const (
	// ContentKindDiscussion is a general discussion post.
	ContentKindDiscussion ContentKind = "discussion"
	// ContentKindPrayerRequest is a prayer request.
	ContentKindPrayerRequest ContentKind = "prayer_request"
	// ContentKindTestimony is a testimony.
	ContentKindTestimony ContentKind = "testimony"
	// ContentKindScriptureShare is a shared scripture passage.
	ContentKindScriptureShare ContentKind = "scripture_share"
)

// contentKindAliases maps legacy API tokens to their canonical kinds.
// Old clients still send these.
var contentKindAliases = map[string]ContentKind{
	"prayer":    ContentKindPrayerRequest,
	"post":      ContentKindDiscussion,
	"scripture": ContentKindScriptureShare,
}

// ContentKinds returns all canonical content kinds in feed aggregation order.
func ContentKinds() []ContentKind {
	return []ContentKind{
		ContentKindDiscussion,
		ContentKindPrayerRequest,
		ContentKindTestimony,
		ContentKindScriptureShare,
	}
}

// ParseContentKind resolves a raw token to its canonical content kind.
// Legacy aliases are accepted and normalized. Unknown tokens return
// ErrUnknownContentKind wrapped with the offending value.
func ParseContentKind(raw string) (ContentKind, error) {
	token := strings.ToLower(strings.TrimSpace(raw))

	switch kind := ContentKind(token); kind {
	case ContentKindDiscussion, ContentKindPrayerRequest, ContentKindTestimony, ContentKindScriptureShare:
		return kind, nil
	}

	if kind, ok := contentKindAliases[token]; ok {
		return kind, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownContentKind, raw)
}

// IsValid reports whether the kind is one of the canonical values.
func (k ContentKind) IsValid() bool {
	switch k {
	case ContentKindDiscussion, ContentKindPrayerRequest, ContentKindTestimony, ContentKindScriptureShare:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (k ContentKind) String() string {
	return string(k)
}
