package util

import "strings"

// KakaoTalk collapses messages taller than a few lines behind a "see more"
// control once enough characters precede the fold. Padding the preview line
// with zero-width spaces forces the fold right after it, so long ballots and
// result listings arrive collapsed instead of flooding the room.
const (
	seeMorePadding = 500
	zeroWidthSpace = "\u200b"
)

// FoldAfter returns preview + text arranged so the chat client folds
// everything after the preview line. Empty text passes through untouched.
func FoldAfter(preview, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	preview = strings.TrimSpace(preview)

	var b strings.Builder
	b.Grow(len(text) + seeMorePadding + len(preview) + 2)
	if preview != "" {
		b.WriteString(preview)
	}
	b.WriteString(strings.Repeat(zeroWidthSpace, seeMorePadding))
	if !strings.HasPrefix(text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(text)
	return b.String()
}
