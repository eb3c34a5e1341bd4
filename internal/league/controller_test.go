package league

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/zac-garby/broken-microphone/internal/msgcat"
	"github.com/zac-garby/broken-microphone/internal/ytlink"
)

type fakeMessenger struct {
	mu      sync.Mutex
	channel map[string][]string // room -> messages
	direct  map[string][]string // member -> messages
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{channel: map[string][]string{}, direct: map[string][]string{}}
}

func (f *fakeMessenger) SendMessage(_ context.Context, room, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel[room] = append(f.channel[room], text)
	return nil
}

func (f *fakeMessenger) SendDirect(_ context.Context, memberID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct[memberID] = append(f.direct[memberID], text)
	return nil
}

func (f *fakeMessenger) ResolveDisplayName(_ context.Context, _, memberID string) string {
	return "Name(" + memberID + ")"
}

func (f *fakeMessenger) lastChannel(room string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.channel[room]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type fakeSink struct {
	mu      sync.Mutex
	saved   int
	groupID string
	round   *Round
	ranking []EntryScore
}

func (f *fakeSink) SaveRound(_ context.Context, groupID string, r *Round, ranking []EntryScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	f.groupID = groupID
	f.round = r
	f.ranking = ranking
	return nil
}

func newTestController(t *testing.T, debug bool) (*Controller, *fakeMessenger, *fakeSink) {
	t.Helper()
	store := newTestStore(t)
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	fm := newFakeMessenger()
	titles := ytlink.StaticTitleFetcher{
		"aaaaaaaaaaa": "Song A",
		"bbbbbbbbbbb": "Song B",
		"ccccccccccc": "Song C",
	}
	c := NewController(store, cat, fm, titles, ControllerConfig{Prefix: ";", Budget: 10, Debug: debug})
	sink := &fakeSink{}
	c.AttachResultSink(sink)
	return c, fm, sink
}

func seedGroup(t *testing.T, c *Controller, groupID, room string, members ...string) {
	t.Helper()
	ctx := context.Background()
	for _, m := range members {
		if _, err := c.Join(ctx, groupID, m); err != nil {
			t.Fatalf("Join %s: %v", m, err)
		}
	}
	if err := c.SetAnnounceTarget(ctx, groupID, room); err != nil {
		t.Fatalf("SetAnnounceTarget: %v", err)
	}
}

func TestController_FullRound(t *testing.T) {
	c, fm, sink := newTestController(t, false)
	ctx := context.Background()
	seedGroup(t, c, "g1", "room1", "a", "b", "c")

	if err := c.StartRound(ctx, "g1", "songs about rain"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	for _, m := range []string{"a", "b", "c"} {
		if intent, ok := c.Pending().Get(m); !ok || intent != AwaitingLink {
			t.Fatalf("member %s should await a link, got %v/%v", m, intent, ok)
		}
	}
	if err := c.StartRound(ctx, "g1", "again"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	res, err := c.Submit(ctx, "a", "https://youtu.be/aaaaaaaaaaa")
	if err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	if res.Title != "Song A" || res.Count != 1 || res.Total != 3 || res.Advanced {
		t.Fatalf("unexpected submit result: %+v", res)
	}
	if intent, _ := c.Pending().Get("a"); intent != AwaitingDescription {
		t.Fatalf("a should await a description, got %v", intent)
	}
	if _, err := c.SetDescription(ctx, "a", "a classic"); err != nil {
		t.Fatalf("SetDescription: %v", err)
	}

	if _, err := c.Submit(ctx, "b", "https://www.youtube.com/watch?v=bbbbbbbbbbb"); err != nil {
		t.Fatalf("Submit b: %v", err)
	}
	res, err = c.Submit(ctx, "c", "https://www.youtube.com/shorts/ccccccccccc")
	if err != nil {
		t.Fatalf("Submit c: %v", err)
	}
	if !res.Advanced {
		t.Fatal("third submission should auto-close the round")
	}

	numbered, err := c.NumberedSubmissions(ctx, "g1")
	if err != nil {
		t.Fatalf("NumberedSubmissions: %v", err)
	}
	if len(numbered) != 3 {
		t.Fatalf("numbered length: %d", len(numbered))
	}
	for i, want := range []string{"a", "b", "c"} {
		if numbered[i].MemberID != want {
			t.Fatalf("entry %d should be %s's, got %s", i+1, want, numbered[i].MemberID)
		}
	}
	for _, m := range []string{"a", "b", "c"} {
		if _, ok := c.Pending().Get(m); ok {
			t.Fatalf("pending intent for %s should be cleared at close", m)
		}
	}
	// a concurrent or repeated close is a no-op
	if err := c.CloseSubmissions(ctx, "g1"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("second close: expected ErrWrongPhase, got %v", err)
	}

	// self-vote rejected, nothing recorded
	if _, err := c.CastVote(ctx, "a", []string{"1:10"}); !errors.Is(err, ErrSelfVote) {
		t.Fatalf("expected ErrSelfVote, got %v", err)
	}

	out, err := c.CastVote(ctx, "a", []string{"2:6", "3:4"})
	if err != nil {
		t.Fatalf("CastVote a: %v", err)
	}
	if out.Count != 1 || out.Total != 3 || out.Advanced {
		t.Fatalf("unexpected vote outcome: %+v", out)
	}
	if len(out.Lines) != 2 || !strings.Contains(out.Lines[0], "Song B") {
		t.Fatalf("confirmation should rank Song B first: %v", out.Lines)
	}

	if _, err := c.CastVote(ctx, "b", []string{"1:5", "3:5"}); err != nil {
		t.Fatalf("CastVote b: %v", err)
	}
	out, err = c.CastVote(ctx, "c", []string{"1:5", "2:5"})
	if err != nil {
		t.Fatalf("CastVote c: %v", err)
	}
	if !out.Advanced {
		t.Fatal("final vote should auto-finish the round")
	}

	// totals: entry1=10, entry2=11, entry3=9
	if sink.saved != 1 {
		t.Fatalf("expected 1 saved round, got %d", sink.saved)
	}
	wantOrder := []int{2, 1, 3}
	for i, es := range sink.ranking {
		if es.EntryID != wantOrder[i] {
			t.Fatalf("ranking[%d]: expected entry %d, got %d", i, wantOrder[i], es.EntryID)
		}
	}

	results := fm.lastChannel("room1")
	if !strings.Contains(results, "Song B") || !strings.Contains(results, "Name(b)") {
		t.Fatalf("results message should name the winner: %q", results)
	}

	// round cleared, group back to idle
	if _, err := c.Status(ctx, "g1"); !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("expected idle group, got %v", err)
	}
	if err := c.FinishRound(ctx, "g1"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("finish on idle group: expected ErrWrongPhase, got %v", err)
	}
}

func TestController_CloseWithoutSubmissions(t *testing.T) {
	c, _, _ := newTestController(t, false)
	ctx := context.Background()
	seedGroup(t, c, "g1", "room1", "a", "b")

	if err := c.StartRound(ctx, "g1", "prompt"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if err := c.CloseSubmissions(ctx, "g1"); !errors.Is(err, ErrNoSubmissions) {
		t.Fatalf("expected ErrNoSubmissions, got %v", err)
	}

	// still collecting, a submission is accepted afterwards
	if _, err := c.Submit(ctx, "a", "https://youtu.be/aaaaaaaaaaa"); err != nil {
		t.Fatalf("Submit after failed close: %v", err)
	}
	rep, err := c.Status(ctx, "g1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rep.Phase != PhaseCollecting || rep.Submitted != 1 {
		t.Fatalf("unexpected status: %+v", rep)
	}
}

func TestController_StartRequiresAnnounceTarget(t *testing.T) {
	c, _, _ := newTestController(t, false)
	ctx := context.Background()
	if _, err := c.Join(ctx, "g1", "a"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := c.StartRound(ctx, "g1", "prompt"); !errors.Is(err, ErrNoAnnounceTarget) {
		t.Fatalf("expected ErrNoAnnounceTarget, got %v", err)
	}
}

func TestController_StartFromQueue(t *testing.T) {
	c, fm, _ := newTestController(t, false)
	ctx := context.Background()
	seedGroup(t, c, "g1", "room1", "a")

	if err := c.StartRound(ctx, "g1", ""); !errors.Is(err, ErrNoPrompt) {
		t.Fatalf("expected ErrNoPrompt with empty queue, got %v", err)
	}

	if _, err := c.QueueAdd(ctx, "g1", "queued prompt"); err != nil {
		t.Fatalf("QueueAdd: %v", err)
	}
	if err := c.StartRound(ctx, "g1", ""); err != nil {
		t.Fatalf("StartRound from queue: %v", err)
	}
	rep, err := c.Status(ctx, "g1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rep.Prompt != "queued prompt" {
		t.Fatalf("prompt should come from the queue, got %q", rep.Prompt)
	}
	queue, _, err := c.QueueView(ctx, "g1")
	if err != nil || len(queue) != 0 {
		t.Fatalf("queue should be consumed: %v, %v", queue, err)
	}
	if !strings.Contains(fm.lastChannel("room1"), "queued prompt") {
		t.Fatalf("announcement should carry the prompt: %q", fm.lastChannel("room1"))
	}
}

func TestController_SelfVoteDebugOverride(t *testing.T) {
	c, _, _ := newTestController(t, true)
	ctx := context.Background()
	seedGroup(t, c, "g1", "room1", "a", "b")

	if err := c.StartRound(ctx, "g1", "p"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if _, err := c.Submit(ctx, "a", "https://youtu.be/aaaaaaaaaaa"); err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	if _, err := c.Submit(ctx, "b", "https://youtu.be/bbbbbbbbbbb"); err != nil {
		t.Fatalf("Submit b: %v", err)
	}

	out, err := c.CastVote(ctx, "a", []string{"1:10"})
	if err != nil {
		t.Fatalf("debug self-vote should be tolerated: %v", err)
	}
	if !out.SelfVoteDebug {
		t.Fatal("outcome should flag the tolerated self-vote")
	}
}

func TestController_RevoteReplaces(t *testing.T) {
	c, _, sink := newTestController(t, false)
	ctx := context.Background()
	seedGroup(t, c, "g1", "room1", "a", "b", "c")

	if err := c.StartRound(ctx, "g1", "p"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	subs := []struct{ member, url string }{
		{"a", "https://youtu.be/aaaaaaaaaaa"},
		{"b", "https://youtu.be/bbbbbbbbbbb"},
		{"c", "https://youtu.be/ccccccccccc"},
	}
	for _, s := range subs {
		if _, err := c.Submit(ctx, s.member, s.url); err != nil {
			t.Fatalf("Submit %s: %v", s.member, err)
		}
	}

	if _, err := c.CastVote(ctx, "a", []string{"2:10"}); err != nil {
		t.Fatalf("CastVote a: %v", err)
	}
	// replacement before the threshold: still one distinct voter
	out, err := c.CastVote(ctx, "a", []string{"3:10"})
	if err != nil {
		t.Fatalf("re-vote: %v", err)
	}
	if out.Count != 1 || out.Advanced {
		t.Fatalf("re-vote must not advance the round: %+v", out)
	}

	if _, err := c.CastVote(ctx, "b", []string{"1:10"}); err != nil {
		t.Fatalf("CastVote b: %v", err)
	}
	out, err = c.CastVote(ctx, "c", []string{"1:10"})
	if err != nil {
		t.Fatalf("CastVote c: %v", err)
	}
	if !out.Advanced {
		t.Fatal("third distinct voter should finish the round")
	}

	// a's final ballot counted entry 3, not the replaced entry 2
	points := map[int]int{}
	for _, es := range sink.ranking {
		points[es.EntryID] = es.Points
	}
	if points[2] != 0 || points[3] != 10 || points[1] != 20 {
		t.Fatalf("unexpected totals: %v", points)
	}
}

func TestController_LeaveLowersThreshold(t *testing.T) {
	c, _, _ := newTestController(t, false)
	ctx := context.Background()
	seedGroup(t, c, "g1", "room1", "a", "b", "c")

	if err := c.StartRound(ctx, "g1", "p"); err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if _, err := c.Submit(ctx, "a", "https://youtu.be/aaaaaaaaaaa"); err != nil {
		t.Fatalf("Submit a: %v", err)
	}
	if _, err := c.Leave(ctx, "g1", "c"); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	// now 2 members; b's submission meets the threshold
	res, err := c.Submit(ctx, "b", "https://youtu.be/bbbbbbbbbbb")
	if err != nil {
		t.Fatalf("Submit b: %v", err)
	}
	if !res.Advanced {
		t.Fatalf("departure should lower the auto-close threshold: %+v", res)
	}
}
