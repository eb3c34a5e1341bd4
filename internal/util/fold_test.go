package util

import (
	"strings"
	"testing"
)

func TestFoldAfter(t *testing.T) {
	out := FoldAfter("Voting time!", "1. Song A\n2. Song B")
	if !strings.HasPrefix(out, "Voting time!") {
		t.Fatalf("preview must lead the message: %q", out[:20])
	}
	if !strings.HasSuffix(out, "1. Song A\n2. Song B") {
		t.Fatalf("body must follow the fold: %q", out)
	}
	if strings.Count(out, "\u200b") != seeMorePadding {
		t.Fatalf("padding count: %d", strings.Count(out, "\u200b"))
	}
}

func TestFoldAfter_EmptyBody(t *testing.T) {
	if got := FoldAfter("preview", "  "); got != "  " {
		t.Fatalf("empty body should pass through: %q", got)
	}
}
