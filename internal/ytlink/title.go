package ytlink

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/zac-garby/broken-microphone/internal/obslog"
)

// UnknownTitle is the sentinel returned whenever a title cannot be fetched.
const UnknownTitle = "<unknown title>"

// TitleFetcher resolves a video ID to a human-readable title. Implementations
// must return UnknownTitle on any failure and never error.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, videoID string) string
}

// APITitleFetcher queries the YouTube Data API for video snippets.
type APITitleFetcher struct {
	apiKey string
	http   *fasthttp.Client
}

func NewAPITitleFetcher(apiKey string) *APITitleFetcher {
	return &APITitleFetcher{
		apiKey: apiKey,
		http:   &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
	}
}

type snippetResponse struct {
	Items []struct {
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

func (f *APITitleFetcher) FetchTitle(ctx context.Context, videoID string) string {
	if f == nil || f.apiKey == "" {
		return UnknownTitle
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", videoID)
	q.Set("key", f.apiKey)
	uri := "https://www.googleapis.com/youtube/v3/videos?" + q.Encode()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(uri)

	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := f.http.DoDeadline(req, resp, deadline); err != nil {
		obslog.L().Warn("yt_title_fetch_error", zap.String("video_id", videoID), zap.Error(err))
		return UnknownTitle
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		obslog.L().Warn("yt_title_fetch_status", zap.String("video_id", videoID), zap.Int("status", resp.StatusCode()))
		return UnknownTitle
	}

	var body snippetResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil || len(body.Items) == 0 {
		return UnknownTitle
	}
	return body.Items[0].Snippet.Title
}

// StaticTitleFetcher returns a fixed mapping, for tests and offline use.
type StaticTitleFetcher map[string]string

func (s StaticTitleFetcher) FetchTitle(_ context.Context, videoID string) string {
	if t, ok := s[videoID]; ok {
		return t
	}
	return UnknownTitle
}
