package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/zac-garby/broken-microphone/internal/obslog"
)

// Fetcher downloads submission audio ahead of playback and serves the cached
// files. Implementations must be safe for concurrent use across groups.
type Fetcher interface {
	Prefetch(ctx context.Context, mediaURL, key string) error
	Available(key string) bool
	ReadBase64(key string) (string, error)
	Clear() error
}

// YTDLPFetcher shells out to yt-dlp with an m4a audio postprocessor, capping
// downloads at maxBytes.
type YTDLPFetcher struct {
	dir      string
	maxBytes int64
	binary   string
}

func NewYTDLPFetcher(dir string, maxMB int) (*YTDLPFetcher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("audio dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &YTDLPFetcher{dir: dir, maxBytes: int64(maxMB) * 1024 * 1024, binary: "yt-dlp"}, nil
}

func (f *YTDLPFetcher) path(key string) string {
	return filepath.Join(f.dir, key+".m4a")
}

// Prefetch downloads the audio for mediaURL under key. Already-cached keys are
// re-downloaded (overwrite), matching a fresh round's expectations.
func (f *YTDLPFetcher) Prefetch(ctx context.Context, mediaURL, key string) error {
	out := filepath.Join(f.dir, key+".%(ext)s")
	cmd := exec.CommandContext(ctx, f.binary,
		"--quiet", "--no-warnings",
		"--format", "bestaudio/best",
		"--extract-audio", "--audio-format", "m4a",
		"--max-filesize", fmt.Sprintf("%d", f.maxBytes),
		"--force-overwrites",
		"--output", out,
		mediaURL,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		obslog.L().Warn("media_prefetch_error",
			zap.String("key", key),
			zap.String("url", mediaURL),
			zap.String("output", strings.TrimSpace(string(b))),
			zap.Error(err),
		)
		return fmt.Errorf("prefetch %s: %w", key, err)
	}
	if !f.Available(key) {
		return fmt.Errorf("prefetch %s: no output file", key)
	}
	obslog.L().Info("media_prefetch", zap.String("key", key))
	return nil
}

func (f *YTDLPFetcher) Available(key string) bool {
	_, err := os.Stat(f.path(key))
	return err == nil
}

// ReadBase64 returns the cached audio encoded for the gateway's voice endpoint.
func (f *YTDLPFetcher) ReadBase64(key string) (string, error) {
	b, err := os.ReadFile(f.path(key))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Clear wipes the audio cache. Individual removal failures are skipped, as old
// files only waste space.
func (f *YTDLPFetcher) Clear() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		_ = os.Remove(filepath.Join(f.dir, e.Name()))
	}
	return nil
}
