package league

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zac-garby/broken-microphone/internal/msgcat"
	"github.com/zac-garby/broken-microphone/internal/obslog"
	"github.com/zac-garby/broken-microphone/internal/util"
	"github.com/zac-garby/broken-microphone/internal/ytlink"
)

// Messenger is the outbound half of the chat transport. Direct-message
// failures are non-fatal everywhere they occur.
type Messenger interface {
	SendMessage(ctx context.Context, room, text string) error
	SendDirect(ctx context.Context, memberID, text string) error
	ResolveDisplayName(ctx context.Context, groupID, memberID string) string
}

// TitleFetcher resolves a video ID to a display title, never failing.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, videoID string) string
}

// Prefetcher caches submission audio for later playback.
type Prefetcher interface {
	Prefetch(ctx context.Context, mediaURL, key string) error
	Clear() error
}

// ResultSink records finished rounds somewhere durable.
type ResultSink interface {
	SaveRound(ctx context.Context, groupID string, r *Round, ranking []EntryScore) error
}

// Controller drives the round lifecycle for every group: phase transitions,
// auto-advance, and the outbound messaging around them. All state mutation
// goes through the Store's per-group critical section; collaborator I/O
// (titles, prefetch, delivery) stays outside it.
type Controller struct {
	store   *Store
	pending *PendingTracker
	cat     *msgcat.Catalog
	msgr    Messenger
	titles  TitleFetcher

	prefetch Prefetcher
	results  ResultSink

	prefix string
	budget int
	debug  bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

type ControllerConfig struct {
	Prefix string
	Budget int
	Debug  bool
}

func NewController(store *Store, cat *msgcat.Catalog, msgr Messenger, titles TitleFetcher, cfg ControllerConfig) *Controller {
	if cfg.Budget <= 0 {
		cfg.Budget = 10
	}
	return &Controller{
		store:   store,
		pending: NewPendingTracker(),
		cat:     cat,
		msgr:    msgr,
		titles:  titles,
		prefix:  cfg.Prefix,
		budget:  cfg.Budget,
		debug:   cfg.Debug,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AttachPrefetcher wires the media cache. Optional; without it submissions are
// simply not pre-downloaded.
func (c *Controller) AttachPrefetcher(p Prefetcher) {
	if c != nil {
		c.prefetch = p
	}
}

// AttachResultSink wires the round-history repository. Optional.
func (c *Controller) AttachResultSink(s ResultSink) {
	if c != nil {
		c.results = s
	}
}

// Pending exposes the intent tracker for the DM dispatcher.
func (c *Controller) Pending() *PendingTracker { return c.pending }

func (c *Controller) Budget() int { return c.budget }

// ---- membership ----

// Join adds memberID to the group, reporting whether anything changed.
func (c *Controller) Join(ctx context.Context, groupID, memberID string) (bool, error) {
	joined := false
	err := c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		if g.IsMember(memberID) {
			return nil
		}
		g.Members = append(g.Members, memberID)
		joined = true
		return nil
	})
	if err == nil && joined {
		obslog.L().Info("member_join", zap.String("group", groupID), zap.String("member", memberID))
	}
	return joined, err
}

// Leave removes memberID from the group, reporting whether anything changed.
func (c *Controller) Leave(ctx context.Context, groupID, memberID string) (bool, error) {
	left := false
	err := c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		for i, m := range g.Members {
			if m == memberID {
				g.Members = append(g.Members[:i], g.Members[i+1:]...)
				left = true
				return nil
			}
		}
		return nil
	})
	if err == nil && left {
		c.pending.Clear(memberID)
		obslog.L().Info("member_leave", zap.String("group", groupID), zap.String("member", memberID))
	}
	return left, err
}

// SetAnnounceTarget points round-wide broadcasts at a channel.
func (c *Controller) SetAnnounceTarget(ctx context.Context, groupID, channelID string) error {
	return c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		g.AnnounceTarget = strings.TrimSpace(channelID)
		return nil
	})
}

// ---- queue ----

func (c *Controller) QueueAdd(ctx context.Context, groupID, prompt string) (int, error) {
	index := 0
	err := c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		index = g.EnqueuePrompt(prompt)
		return nil
	})
	return index, err
}

func (c *Controller) QueueView(ctx context.Context, groupID string) ([]string, bool, error) {
	g, err := c.store.Get(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	return g.Queue, g.QueueShuffle, nil
}

func (c *Controller) QueueRemove(ctx context.Context, groupID string, index int) (string, error) {
	removed := ""
	err := c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		var rerr error
		removed, rerr = g.RemovePrompt(index)
		return rerr
	})
	return removed, err
}

func (c *Controller) QueueShuffle(ctx context.Context, groupID string, mode ShuffleMode) (bool, error) {
	on := false
	err := c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		on = g.SetShuffle(mode)
		return nil
	})
	return on, err
}

// ---- round lifecycle ----

// StartRound moves a group from Idle to Collecting. With an empty prompt the
// next queued prompt is consumed (shuffle-aware). Announces to the group's
// channel and privately prompts every member for a link; per-member delivery
// failures are swallowed.
func (c *Controller) StartRound(ctx context.Context, groupID, prompt string) error {
	if c.prefetch != nil {
		// previous round's audio is stale the moment a new round begins
		if err := c.prefetch.Clear(); err != nil {
			obslog.L().Warn("media_clear_error", zap.String("group", groupID), zap.Error(err))
		}
	}

	prompt = strings.TrimSpace(prompt)
	var members []string
	var target, chosen string
	err := c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		if g.AnnounceTarget == "" {
			return ErrNoAnnounceTarget
		}
		if g.CurrentRound != nil {
			return ErrAlreadyRunning
		}
		chosen = prompt
		if chosen == "" {
			c.rngMu.Lock()
			p, derr := g.DequeuePrompt(c.rng)
			c.rngMu.Unlock()
			if derr != nil {
				return derr
			}
			chosen = p
		}
		g.CurrentRound = &Round{
			ID:          uuid.NewString(),
			Prompt:      chosen,
			Phase:       PhaseCollecting,
			Submissions: []Submission{},
			Votes:       []Vote{},
			StartedAt:   time.Now(),
		}
		members = append([]string(nil), g.Members...)
		target = g.AnnounceTarget
		return nil
	})
	if err != nil {
		return err
	}

	obslog.L().Info("round_start",
		zap.String("group", groupID),
		zap.String("prompt", chosen),
		zap.Int("members", len(members)),
	)

	_ = c.msgr.SendMessage(ctx, target, c.cat.MustRender("round.started_channel", map[string]any{"Prompt": chosen}))

	dm := c.cat.MustRender("round.started_dm", map[string]any{"Prompt": chosen, "Prefix": c.prefix})
	for _, m := range members {
		if derr := c.msgr.SendDirect(ctx, m, dm); derr != nil {
			obslog.L().Warn("round_start_dm_error", zap.String("group", groupID), zap.String("member", m), zap.Error(derr))
			continue
		}
		c.pending.Set(m, AwaitingLink)
	}
	return nil
}

// SubmitResult reports the outcome of a submission for the actor's feedback.
type SubmitResult struct {
	GroupID  string
	Title    string
	Count    int
	Total    int
	Advanced bool
}

// Submit records memberID's link in whichever group has a collecting round the
// member belongs to. The title fetch runs before the critical section.
func (c *Controller) Submit(ctx context.Context, memberID, rawURL string) (*SubmitResult, error) {
	groupID, err := c.findGroup(ctx, memberID, PhaseCollecting)
	if err != nil {
		return nil, err
	}

	videoID := ytlink.ExtractVideoID(rawURL)
	if videoID == "" {
		return nil, ErrBadLink
	}
	canonical := ytlink.CanonicalURL(videoID)
	title := c.titles.FetchTitle(ctx, videoID)

	res := &SubmitResult{GroupID: groupID, Title: title}
	err = c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		r := g.CurrentRound
		if r == nil || r.Phase != PhaseCollecting {
			return ErrNoActiveRound
		}
		if !g.IsMember(memberID) {
			return ErrNotMember
		}
		if aerr := ApplySubmission(r, memberID, canonical, videoID, title); aerr != nil {
			return aerr
		}
		res.Count = DistinctSubmitters(r)
		res.Total = len(g.Members)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.pending.Set(memberID, AwaitingDescription)
	obslog.L().Info("submission",
		zap.String("group", groupID),
		zap.String("member", memberID),
		zap.String("video_id", videoID),
		zap.Int("count", res.Count),
		zap.Int("total", res.Total),
	)

	// post-condition: everyone submitted -> close. A concurrent close makes
	// this a no-op (the phase already moved).
	if res.Count == res.Total && res.Count > 0 {
		if cerr := c.CloseSubmissions(ctx, groupID); cerr == nil {
			res.Advanced = true
			obslog.L().Info("auto_close", zap.String("group", groupID))
		} else if cerr != ErrWrongPhase {
			obslog.L().Warn("auto_close_error", zap.String("group", groupID), zap.Error(cerr))
		}
	}
	return res, nil
}

// SetDescription attaches description text to the member's current submission.
func (c *Controller) SetDescription(ctx context.Context, memberID, text string) (string, error) {
	groupID, err := c.findGroup(ctx, memberID, PhaseCollecting)
	if err != nil {
		return "", err
	}
	err = c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		return SetDescription(g.CurrentRound, memberID, text)
	})
	if err != nil {
		return "", err
	}
	c.pending.Clear(memberID)
	obslog.L().Info("description_set", zap.String("group", groupID), zap.String("member", memberID))
	return groupID, nil
}

// CloseSubmissions moves Collecting to Voting: freezes the numbered list,
// clears pending intents for the group, publishes the entries, DMs ballots,
// and pre-fetches audio once the transition is durably committed.
func (c *Controller) CloseSubmissions(ctx context.Context, groupID string) error {
	var members []string
	var numbered []Submission
	var target, prompt string
	err := c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		r := g.CurrentRound
		if r == nil || r.Phase != PhaseCollecting {
			return ErrWrongPhase
		}
		if len(r.Submissions) == 0 {
			return ErrNoSubmissions
		}
		if g.AnnounceTarget == "" {
			return ErrNoAnnounceTarget
		}
		if ferr := Freeze(r); ferr != nil {
			return ferr
		}
		r.Phase = PhaseVoting
		members = append([]string(nil), g.Members...)
		numbered = append([]Submission(nil), r.Numbered...)
		target = g.AnnounceTarget
		prompt = r.Prompt
		return nil
	})
	if err != nil {
		return err
	}

	c.pending.ClearAll(members)
	obslog.L().Info("submissions_closed",
		zap.String("group", groupID),
		zap.String("prompt", prompt),
		zap.Int("entries", len(numbered)),
	)

	c.announceVoting(ctx, target, numbered)
	ballot := c.ballotText(numbered)
	for _, m := range members {
		if derr := c.msgr.SendDirect(ctx, m, ballot); derr != nil {
			obslog.L().Warn("ballot_dm_error", zap.String("group", groupID), zap.String("member", m), zap.Error(derr))
		}
	}

	c.prefetchAll(ctx, groupID, target, numbered)
	return nil
}

func (c *Controller) announceVoting(ctx context.Context, target string, numbered []Submission) {
	ids := make([]string, 0, len(numbered))
	for _, s := range numbered {
		ids = append(ids, s.VideoID)
	}
	playlist := "No valid submissions."
	if u := ytlink.PlaylistURL(ids); u != "" {
		playlist = ytlink.PrettyLink("View the playlist here!", u)
	}

	var b strings.Builder
	b.WriteString(c.cat.MustRender("round.closed_header", map[string]any{"Playlist": playlist}))
	for i, s := range numbered {
		fmt.Fprintf(&b, "\n- %d: %s", i+1, ytlink.PrettyLink(s.Title, s.URL))
	}
	_ = c.msgr.SendMessage(ctx, target, b.String())
}

func (c *Controller) ballotText(numbered []Submission) string {
	var b strings.Builder
	for i, s := range numbered {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, s.Title)
		if s.Description != "" {
			fmt.Fprintf(&b, "%s\n", s.Description)
		}
		fmt.Fprintf(&b, "%s\n", ytlink.PrettyLink("Open on YouTube", s.URL))
	}
	b.WriteString("\n")
	b.WriteString(c.cat.MustRender("vote.dm_footer", map[string]any{"Prefix": c.prefix}))
	header := c.cat.MustRender("vote.dm_header", map[string]any{"Budget": c.budget})
	return util.FoldAfter(header, b.String())
}

// prefetchAll caches audio for each numbered entry. It runs after the phase
// transition committed and must not hold the group's critical section;
// per-item failures are reported and skipped.
func (c *Controller) prefetchAll(ctx context.Context, groupID, target string, numbered []Submission) {
	if c.prefetch == nil {
		return
	}
	_ = c.msgr.SendMessage(ctx, target, c.cat.MustRender("media.predownload", nil))
	for i, s := range numbered {
		entryID := i + 1
		_ = c.msgr.SendMessage(ctx, target, c.cat.MustRender("media.downloading", map[string]any{"EntryID": entryID, "Title": s.Title}))
		key := MediaKey(groupID, entryID)
		if err := c.prefetch.Prefetch(ctx, s.URL, key); err != nil {
			_ = c.msgr.SendMessage(ctx, target, c.cat.MustRender("media.download_failed", map[string]any{"Title": s.Title}))
			continue
		}
	}
	_ = c.msgr.SendMessage(ctx, target, c.cat.MustRender("media.all_done", nil))
}

// MediaKey names the cached audio for one entry of one group's round.
func MediaKey(groupID string, entryID int) string {
	return fmt.Sprintf("%s_%d", groupID, entryID)
}

// VoteOutcome reports a recorded ballot for the voter's confirmation message.
type VoteOutcome struct {
	GroupID       string
	Lines         []string // "<title> - <points> point(s)", ranked
	Count         int
	Total         int
	Advanced      bool
	SelfVoteDebug bool
}

// CastVote parses and records voterID's ballot in whichever group has a voting
// round the voter belongs to. The whole ballot applies or none of it does.
func (c *Controller) CastVote(ctx context.Context, voterID string, tokens []string) (*VoteOutcome, error) {
	groupID, err := c.findGroup(ctx, voterID, PhaseVoting)
	if err != nil {
		return nil, err
	}

	out := &VoteOutcome{GroupID: groupID}
	err = c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		r := g.CurrentRound
		if r == nil || r.Phase != PhaseVoting {
			return ErrNoActiveRound
		}
		if !g.IsMember(voterID) {
			return ErrNotMember
		}
		dist, perr := ParseDistribution(tokens, len(r.Numbered), c.budget)
		if perr != nil {
			return perr
		}
		violated, verr := CheckSelfVote(dist, voterID, r.Numbered, c.debug)
		if verr != nil {
			return verr
		}
		out.SelfVoteDebug = violated

		RecordVote(r, Vote{VoterID: voterID, Distribution: dist})
		out.Count = DistinctVoters(r)
		out.Total = len(g.Members)
		out.Lines = confirmationLines(r.Numbered, dist)
		return nil
	})
	if err != nil {
		return nil, err
	}

	obslog.L().Info("vote",
		zap.String("group", groupID),
		zap.String("voter", voterID),
		zap.Int("count", out.Count),
		zap.Int("total", out.Total),
	)

	if out.Count == out.Total && out.Count > 0 {
		if ferr := c.FinishRound(ctx, groupID); ferr == nil {
			out.Advanced = true
			obslog.L().Info("auto_finish", zap.String("group", groupID))
		} else if ferr != ErrWrongPhase {
			obslog.L().Warn("auto_finish_error", zap.String("group", groupID), zap.Error(ferr))
		}
	}
	return out, nil
}

func confirmationLines(numbered []Submission, dist map[int]int) []string {
	type alloc struct {
		entryID int
		points  int
	}
	allocs := make([]alloc, 0, len(dist))
	for id, pts := range dist {
		allocs = append(allocs, alloc{entryID: id, points: pts})
	}
	sort.SliceStable(allocs, func(i, j int) bool {
		if allocs[i].points != allocs[j].points {
			return allocs[i].points > allocs[j].points
		}
		return allocs[i].entryID < allocs[j].entryID
	})
	lines := make([]string, 0, len(allocs))
	for rank, a := range allocs {
		unit := "point"
		if a.points != 1 {
			unit = "points"
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %d %s", rank+1, numbered[a.entryID-1].Title, a.points, unit))
	}
	return lines
}

// FinishRound moves Voting to Idle: tallies, publishes ranked results with
// resolved display names, records history, and clears the round.
func (c *Controller) FinishRound(ctx context.Context, groupID string) error {
	var finished *Round
	var ranking []EntryScore
	var target string
	err := c.store.Mutate(ctx, groupID, func(g *GroupState) error {
		r := g.CurrentRound
		if r == nil || r.Phase != PhaseVoting {
			return ErrWrongPhase
		}
		if len(r.Votes) == 0 {
			return ErrNoVotes
		}
		if g.AnnounceTarget == "" {
			return ErrNoAnnounceTarget
		}
		var terr error
		ranking, terr = Tally(r)
		if terr != nil {
			return terr
		}
		finished = r
		target = g.AnnounceTarget
		g.CurrentRound = nil
		return nil
	})
	if err != nil {
		return err
	}

	obslog.L().Info("round_finish",
		zap.String("group", groupID),
		zap.String("round_id", finished.ID),
		zap.Int("entries", len(finished.Numbered)),
		zap.Int("votes", len(finished.Votes)),
	)

	_ = c.msgr.SendMessage(ctx, target, c.resultsText(ctx, groupID, finished, ranking))

	if c.results != nil {
		if serr := c.results.SaveRound(ctx, groupID, finished, ranking); serr != nil {
			obslog.L().Error("round_history_error", zap.String("group", groupID), zap.String("round_id", finished.ID), zap.Error(serr))
		}
	}
	return nil
}

func (c *Controller) resultsText(ctx context.Context, groupID string, r *Round, ranking []EntryScore) string {
	var b strings.Builder
	for rank, es := range ranking {
		sub := r.Numbered[es.EntryID-1]
		name := c.msgr.ResolveDisplayName(ctx, groupID, sub.MemberID)
		fmt.Fprintf(&b, "\n%d. %d pts - %s\n%s\n%s\n", rank+1, es.Points, name, sub.Title, ytlink.PrettyLink("Open on YouTube", sub.URL))
		if sub.Description != "" {
			fmt.Fprintf(&b, "%s\n", sub.Description)
		}
	}
	header := c.cat.MustRender("results.header", map[string]any{"Prompt": r.Prompt})
	return util.FoldAfter(header, b.String())
}

// ---- status / queries ----

// StatusReport is a read-only snapshot for the status command. Member IDs are
// returned raw; the command layer resolves display names.
type StatusReport struct {
	Prompt            string
	Phase             Phase
	Members           int
	Submitted         int
	Voted             int
	MissingSubmitters []string
	MissingVoters     []string
}

func (c *Controller) Status(ctx context.Context, groupID string) (*StatusReport, error) {
	g, err := c.store.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	r := g.CurrentRound
	if r == nil {
		return nil, ErrNoActiveRound
	}

	submitted := make(map[string]struct{}, len(r.Submissions))
	for _, s := range r.Submissions {
		submitted[s.MemberID] = struct{}{}
	}
	voted := make(map[string]struct{}, len(r.Votes))
	for _, v := range r.Votes {
		voted[v.VoterID] = struct{}{}
	}

	rep := &StatusReport{
		Prompt:    r.Prompt,
		Phase:     r.Phase,
		Members:   len(g.Members),
		Submitted: len(submitted),
		Voted:     len(voted),
	}
	for _, m := range g.Members {
		if _, ok := submitted[m]; !ok {
			rep.MissingSubmitters = append(rep.MissingSubmitters, m)
		}
		if _, ok := voted[m]; !ok {
			rep.MissingVoters = append(rep.MissingVoters, m)
		}
	}
	return rep, nil
}

// NumberedSubmissions returns the frozen entry list for playback. ErrWrongPhase
// before the freeze, ErrNoActiveRound with no round at all.
func (c *Controller) NumberedSubmissions(ctx context.Context, groupID string) ([]Submission, error) {
	g, err := c.store.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.CurrentRound == nil {
		return nil, ErrNoActiveRound
	}
	if g.CurrentRound.Numbered == nil {
		return nil, ErrWrongPhase
	}
	return g.CurrentRound.Numbered, nil
}

// findGroup locates the group where memberID belongs and a round in the wanted
// phase is running, mirroring how DM commands are routed to a group.
func (c *Controller) findGroup(ctx context.Context, memberID string, phase Phase) (string, error) {
	ids, err := c.store.GroupIDs(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		g, gerr := c.store.Get(ctx, id)
		if gerr != nil {
			continue
		}
		if !g.IsMember(memberID) {
			continue
		}
		if g.CurrentRound != nil && g.CurrentRound.Phase == phase {
			return id, nil
		}
	}
	return "", ErrNoActiveRound
}
