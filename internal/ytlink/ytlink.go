package ytlink

import (
	"fmt"
	"regexp"
	"strings"
)

// Link normalization: extract a canonical YouTube video ID from a free-form
// URL string. Pure, deterministic, never errors.

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_\-]{6,})`),
	regexp.MustCompile(`v=([A-Za-z0-9_\-]{6,})`),
	regexp.MustCompile(`shorts/([A-Za-z0-9_\-]{6,})`),
	regexp.MustCompile(`/([A-Za-z0-9_\-]{6,})$`),
}

// ExtractVideoID returns the first video ID matched in priority order
// (short-link, query parameter, shorts path, bare trailing segment), or ""
// when the string holds no recognizable ID.
func ExtractVideoID(url string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// CanonicalURL is the normalized watch URL for a video ID.
func CanonicalURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// PlaylistURL builds the shareable aggregate link over the given video IDs,
// skipping empties. Returns "" when nothing is playable.
func PlaylistURL(videoIDs []string) string {
	ids := make([]string, 0, len(videoIDs))
	for _, id := range videoIDs {
		if strings.TrimSpace(id) != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	return fmt.Sprintf("https://www.youtube.com/watch_videos?video_ids=%s", strings.Join(ids, ","))
}

// PrettyLink masks a URL behind text, with <> to suppress chat previews.
func PrettyLink(text, url string) string {
	return fmt.Sprintf("[%s](<%s>)", text, url)
}
