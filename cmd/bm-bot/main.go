package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/zac-garby/broken-microphone/internal/chatio"
	appcfg "github.com/zac-garby/broken-microphone/internal/config"
	"github.com/zac-garby/broken-microphone/internal/league"
	"github.com/zac-garby/broken-microphone/internal/league/history"
	"github.com/zac-garby/broken-microphone/internal/media"
	"github.com/zac-garby/broken-microphone/internal/msgcat"
	"github.com/zac-garby/broken-microphone/internal/obslog"
	"github.com/zac-garby/broken-microphone/internal/ytlink"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	cat, err := msgcat.New(cfg.TemplateDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	client := chatio.NewClient(cfg.IrisBaseURL)

	ws := chatio.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.OnStateChange(func(state chatio.WebSocketState) {
		obslog.L().Info("ws_state", zap.String("state", string(state)))
	})

	store, err := league.NewStoreFromURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("store init error: %v", err)
	}

	ctrl := league.NewController(store, cat, client, ytlink.NewAPITitleFetcher(cfg.YTAPIKey), league.ControllerConfig{
		Prefix: cfg.BotPrefix,
		Budget: cfg.PointBudget,
		Debug:  cfg.Debug,
	})

	fetcher, err := media.NewYTDLPFetcher(cfg.AudioDir, cfg.MaxAudioMB)
	if err != nil {
		log.Fatalf("media init error: %v", err)
	}
	ctrl.AttachPrefetcher(fetcher)

	var repo *history.Repository
	if cfg.DatabaseURL != "" {
		repo, err = history.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("history repo init error: %v", err)
		}
		ctrl.AttachResultSink(repo)
	}

	b := &bot{cfg: cfg, cat: cat, client: client, ctrl: ctrl, media: fetcher}

	ws.OnMessage(func(msg *chatio.Message) {
		if msg == nil || strings.TrimSpace(msg.Text) == "" {
			return
		}
		// keep the WS read loop free
		go b.dispatch(msg)
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		log.Fatalf("ws connect error: %v", err)
	}
	cancel()

	obslog.L().Info("bot_started", zap.String("prefix", cfg.BotPrefix), zap.Bool("debug", cfg.Debug))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_ = ws.Close(context.Background())
	_ = store.Close()
	if repo != nil {
		_ = repo.Close()
	}
}

// gateway is the outbound chatio.Client surface the command layer uses.
type gateway interface {
	SendMessage(ctx context.Context, room, text string) error
	SendDirect(ctx context.Context, memberID, text string) error
	SendVoice(ctx context.Context, device, audioBase64 string) error
	ResolveDisplayName(ctx context.Context, groupID, memberID string) string
}

type bot struct {
	cfg    *appcfg.AppConfig
	cat    *msgcat.Catalog
	client gateway
	ctrl   *league.Controller
	media  media.Fetcher
}

func (b *bot) dispatch(msg *chatio.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, b.cfg.BotPrefix) {
		if msg.Direct {
			b.handleUnprefixedDM(ctx, msg, text)
		}
		return
	}

	raw := strings.TrimSpace(strings.TrimPrefix(text, b.cfg.BotPrefix))
	if raw == "" {
		b.reply(ctx, msg, b.helpText())
		return
	}
	parts := strings.Fields(raw)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		b.reply(ctx, msg, b.helpText())
	case "join":
		b.handleJoin(ctx, msg)
	case "leave":
		b.handleLeave(ctx, msg)
	case "set_channel":
		b.handleSetChannel(ctx, msg)
	case "queue_add":
		b.handleQueueAdd(ctx, msg, strings.TrimSpace(strings.TrimPrefix(raw, parts[0])))
	case "queue_view":
		b.handleQueueView(ctx, msg)
	case "queue_remove":
		b.handleQueueRemove(ctx, msg, args)
	case "queue_shuffle":
		b.handleQueueShuffle(ctx, msg, args)
	case "start_round":
		b.handleStartRound(ctx, msg, strings.TrimSpace(strings.TrimPrefix(raw, parts[0])))
	case "submit_song":
		b.handleSubmit(ctx, msg, args)
	case "close_submissions":
		b.handleCloseSubmissions(ctx, msg)
	case "vote":
		b.handleVote(ctx, msg, args)
	case "finish_round":
		b.handleFinishRound(ctx, msg)
	case "status":
		b.handleStatus(ctx, msg)
	case "listen":
		b.handleListen(ctx, msg, args)
	case "stop":
		// the gateway's voice surface has no cancel endpoint; audio already
		// handed over keeps playing
		b.reply(ctx, msg, b.cat.MustRender("media.no_stop", nil))
	default:
		b.reply(ctx, msg, b.cat.MustRender("common.unknown_command", map[string]any{"Prefix": b.cfg.BotPrefix}))
	}
}

// handleUnprefixedDM routes bare DM text by the member's pending intent: a URL
// while a link is awaited, description text after a submission.
func (b *bot) handleUnprefixedDM(ctx context.Context, msg *chatio.Message, text string) {
	intent, ok := b.ctrl.Pending().Get(msg.SenderID)
	if !ok {
		return
	}
	switch intent {
	case league.AwaitingLink:
		if ytlink.ExtractVideoID(text) == "" {
			b.reply(ctx, msg, b.cat.MustRender("submit.want_link", map[string]any{"Prefix": b.cfg.BotPrefix}))
			return
		}
		b.doSubmit(ctx, msg, text)
	case league.AwaitingDescription:
		if _, err := b.ctrl.SetDescription(ctx, msg.SenderID, text); err != nil {
			b.replyError(ctx, msg, err)
			return
		}
		b.reply(ctx, msg, b.cat.MustRender("submit.description_saved", nil))
	}
}

func (b *bot) handleJoin(ctx context.Context, msg *chatio.Message) {
	if msg.Direct {
		return
	}
	joined, err := b.ctrl.Join(ctx, msg.GroupID, msg.SenderID)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	key := "join.already"
	if joined {
		key = "join.joined"
	}
	b.reply(ctx, msg, b.cat.MustRender(key, nil))
}

func (b *bot) handleLeave(ctx context.Context, msg *chatio.Message) {
	if msg.Direct {
		return
	}
	left, err := b.ctrl.Leave(ctx, msg.GroupID, msg.SenderID)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	key := "join.not_joined"
	if left {
		key = "join.left"
	}
	b.reply(ctx, msg, b.cat.MustRender(key, nil))
}

func (b *bot) handleSetChannel(ctx context.Context, msg *chatio.Message) {
	if msg.Direct {
		return
	}
	if err := b.ctrl.SetAnnounceTarget(ctx, msg.GroupID, msg.Room); err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	b.reply(ctx, msg, b.cat.MustRender("channel.set", nil))
}

func (b *bot) handleQueueAdd(ctx context.Context, msg *chatio.Message, prompt string) {
	if msg.Direct {
		return
	}
	if strings.TrimSpace(prompt) == "" {
		b.reply(ctx, msg, b.cat.MustRender("queue.empty_prompt", nil))
		return
	}
	index, err := b.ctrl.QueueAdd(ctx, msg.GroupID, prompt)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	b.reply(ctx, msg, b.cat.MustRender("queue.added", map[string]any{"Index": index, "Prompt": prompt}))
}

func (b *bot) handleQueueView(ctx context.Context, msg *chatio.Message) {
	if msg.Direct {
		return
	}
	queue, shuffle, err := b.ctrl.QueueView(ctx, msg.GroupID)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	shuffleWord := "off"
	if shuffle {
		shuffleWord = "on"
	}
	if len(queue) == 0 {
		b.reply(ctx, msg, b.cat.MustRender("queue.empty", map[string]any{"Shuffle": shuffleWord}))
		return
	}
	var sb strings.Builder
	sb.WriteString(b.cat.MustRender("queue.header", map[string]any{"Shuffle": shuffleWord}))
	for i, p := range queue {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, p)
	}
	b.reply(ctx, msg, sb.String())
}

func (b *bot) handleQueueRemove(ctx context.Context, msg *chatio.Message, args []string) {
	if msg.Direct {
		return
	}
	if len(args) < 1 {
		b.reply(ctx, msg, b.cat.MustRender("queue.bad_index", nil))
		return
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		b.reply(ctx, msg, b.cat.MustRender("queue.bad_index", nil))
		return
	}
	removed, err := b.ctrl.QueueRemove(ctx, msg.GroupID, index)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	b.reply(ctx, msg, b.cat.MustRender("queue.removed", map[string]any{"Prompt": removed}))
}

func (b *bot) handleQueueShuffle(ctx context.Context, msg *chatio.Message, args []string) {
	if msg.Direct {
		return
	}
	mode := league.ShuffleToggle
	if len(args) >= 1 {
		switch strings.ToLower(args[0]) {
		case "on", "yes":
			mode = league.ShuffleOn
		case "off", "no":
			mode = league.ShuffleOff
		}
	}
	on, err := b.ctrl.QueueShuffle(ctx, msg.GroupID, mode)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	word := "off"
	if on {
		word = "on"
	}
	b.reply(ctx, msg, b.cat.MustRender("queue.shuffle", map[string]any{"Shuffle": word}))
}

func (b *bot) handleStartRound(ctx context.Context, msg *chatio.Message, prompt string) {
	if msg.Direct {
		return
	}
	if err := b.ctrl.StartRound(ctx, msg.GroupID, prompt); err != nil {
		b.replyError(ctx, msg, err)
	}
}

func (b *bot) handleSubmit(ctx context.Context, msg *chatio.Message, args []string) {
	if !msg.Direct {
		b.reply(ctx, msg, b.cat.MustRender("submit.dm_only", nil))
		return
	}
	if len(args) < 1 {
		b.reply(ctx, msg, b.cat.MustRender("submit.want_link", map[string]any{"Prefix": b.cfg.BotPrefix}))
		return
	}
	b.doSubmit(ctx, msg, args[0])
}

func (b *bot) doSubmit(ctx context.Context, msg *chatio.Message, rawURL string) {
	res, err := b.ctrl.Submit(ctx, msg.SenderID, rawURL)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	b.reply(ctx, msg, b.cat.MustRender("submit.received", map[string]any{
		"Title": res.Title,
		"Count": res.Count,
		"Total": res.Total,
	}))
}

func (b *bot) handleCloseSubmissions(ctx context.Context, msg *chatio.Message) {
	if msg.Direct {
		return
	}
	if err := b.ctrl.CloseSubmissions(ctx, msg.GroupID); err != nil {
		b.replyError(ctx, msg, err)
	}
}

func (b *bot) handleVote(ctx context.Context, msg *chatio.Message, args []string) {
	if !msg.Direct {
		b.reply(ctx, msg, b.cat.MustRender("vote.dm_only", nil))
		return
	}
	out, err := b.ctrl.CastVote(ctx, msg.SenderID, args)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	var sb strings.Builder
	if out.SelfVoteDebug {
		sb.WriteString(b.cat.MustRender("vote.self_vote_debug", nil))
		sb.WriteString("\n")
	}
	sb.WriteString(b.cat.MustRender("vote.recorded_header", nil))
	for _, line := range out.Lines {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	sb.WriteString("\n\n")
	sb.WriteString(b.cat.MustRender("vote.recorded_footer", map[string]any{"Count": out.Count, "Total": out.Total}))
	b.reply(ctx, msg, sb.String())
}

func (b *bot) handleFinishRound(ctx context.Context, msg *chatio.Message) {
	if msg.Direct {
		return
	}
	if err := b.ctrl.FinishRound(ctx, msg.GroupID); err != nil {
		b.replyError(ctx, msg, err)
	}
}

func (b *bot) handleStatus(ctx context.Context, msg *chatio.Message) {
	if msg.Direct {
		return
	}
	rep, err := b.ctrl.Status(ctx, msg.GroupID)
	if err != nil {
		b.replyError(ctx, msg, err)
		return
	}
	var sb strings.Builder
	sb.WriteString(b.cat.MustRender("status.header", map[string]any{
		"Prompt":      rep.Prompt,
		"Phase":       string(rep.Phase),
		"Players":     rep.Members,
		"Submissions": rep.Submitted,
		"Votes":       rep.Voted,
	}))
	if rep.Phase == league.PhaseCollecting && len(rep.MissingSubmitters) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(b.cat.MustRender("status.need_submit", nil))
		for _, id := range rep.MissingSubmitters {
			sb.WriteString("\n- ")
			sb.WriteString(b.client.ResolveDisplayName(ctx, msg.GroupID, id))
		}
	}
	if rep.Phase == league.PhaseVoting && len(rep.MissingVoters) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(b.cat.MustRender("status.need_vote", nil))
		for _, id := range rep.MissingVoters {
			sb.WriteString("\n- ")
			sb.WriteString(b.client.ResolveDisplayName(ctx, msg.GroupID, id))
		}
	}
	b.reply(ctx, msg, sb.String())
}

// handleListen plays cached submissions into the channel's voice device: one
// entry when an index is given, the whole numbered list in order without one.
func (b *bot) handleListen(ctx context.Context, msg *chatio.Message, args []string) {
	if msg.Direct {
		return
	}
	numbered, err := b.ctrl.NumberedSubmissions(ctx, msg.GroupID)
	if err != nil {
		if errors.Is(err, league.ErrWrongPhase) {
			b.reply(ctx, msg, b.cat.MustRender("media.not_frozen", nil))
			return
		}
		b.replyError(ctx, msg, err)
		return
	}

	if len(args) < 1 {
		b.reply(ctx, msg, b.cat.MustRender("media.preparing", nil))
		for i := range numbered {
			b.playEntry(ctx, msg, numbered[i], i+1)
		}
		b.reply(ctx, msg, b.cat.MustRender("media.playback_done", nil))
		return
	}

	entryID, err := strconv.Atoi(args[0])
	if err != nil || entryID < 1 || entryID > len(numbered) {
		b.reply(ctx, msg, b.cat.MustRender("media.bad_index", nil))
		return
	}
	b.reply(ctx, msg, b.cat.MustRender("media.preparing", nil))
	b.playEntry(ctx, msg, numbered[entryID-1], entryID)
}

// playEntry fetches on demand when the cache misses; a failed entry is
// reported and skipped so a playlist run continues.
func (b *bot) playEntry(ctx context.Context, msg *chatio.Message, sub league.Submission, entryID int) {
	key := league.MediaKey(msg.GroupID, entryID)
	if !b.media.Available(key) {
		if err := b.media.Prefetch(ctx, sub.URL, key); err != nil {
			b.reply(ctx, msg, b.cat.MustRender("media.play_failed", map[string]any{"Title": sub.Title}))
			return
		}
	}
	audio, err := b.media.ReadBase64(key)
	if err != nil {
		b.reply(ctx, msg, b.cat.MustRender("media.play_failed", map[string]any{"Title": sub.Title}))
		return
	}
	b.reply(ctx, msg, b.cat.MustRender("media.playing", map[string]any{"Title": sub.Title}))
	if err := b.client.SendVoice(ctx, msg.Room, audio); err != nil {
		b.reply(ctx, msg, b.cat.MustRender("media.play_failed", map[string]any{"Title": sub.Title}))
	}
}

// reply answers in the same place the message arrived: DM for direct messages,
// the originating room otherwise.
func (b *bot) reply(ctx context.Context, msg *chatio.Message, text string) {
	var err error
	if msg.Direct {
		err = b.client.SendDirect(ctx, msg.SenderID, text)
	} else {
		err = b.client.SendMessage(ctx, msg.Room, text)
	}
	if err != nil {
		obslog.L().Warn("reply_error", zap.String("room", msg.Room), zap.Bool("direct", msg.Direct), zap.Error(err))
	}
}

// replyError translates domain errors into catalog messages. Unknown errors
// get the generic internal-error text.
func (b *bot) replyError(ctx context.Context, msg *chatio.Message, err error) {
	data := map[string]any{"Prefix": b.cfg.BotPrefix, "Budget": b.cfg.PointBudget}
	key := "common.internal_error"
	switch {
	case errors.Is(err, league.ErrNotMember):
		key = "common.not_member"
	case errors.Is(err, league.ErrAlreadyRunning):
		key = "round.already_running"
	case errors.Is(err, league.ErrNoPrompt):
		key = "round.no_prompt"
	case errors.Is(err, league.ErrNoAnnounceTarget):
		key = "channel.unset"
	case errors.Is(err, league.ErrNoActiveRound):
		key = "round.none_running"
	case errors.Is(err, league.ErrNoSubmissions):
		key = "submit.none_yet"
	case errors.Is(err, league.ErrNoSubmission):
		key = "submit.no_round"
	case errors.Is(err, league.ErrBadLink):
		key = "submit.bad_link"
	case errors.Is(err, league.ErrWrongPhase):
		key = "round.none_running"
	case errors.Is(err, league.ErrBadToken):
		key = "vote.bad_format"
	case errors.Is(err, league.ErrBadEntryID):
		var entryErr *league.EntryIDError
		if errors.As(err, &entryErr) {
			key = "vote.bad_entry"
			data["EntryID"] = entryErr.EntryID
		} else {
			key = "vote.bad_entry_generic"
		}
	case errors.Is(err, league.ErrNegativePoints):
		key = "vote.negative"
	case errors.Is(err, league.ErrBudgetMismatch):
		key = "vote.bad_budget"
	case errors.Is(err, league.ErrSelfVote):
		key = "vote.self_vote"
	case errors.Is(err, league.ErrNoVotes):
		key = "vote.none_yet"
	case errors.Is(err, league.ErrOutOfRange):
		key = "queue.bad_index"
	default:
		obslog.L().Error("command_error", zap.String("room", msg.Room), zap.Error(err))
	}
	b.reply(ctx, msg, b.cat.MustRender(key, data))
}

func (b *bot) helpText() string {
	p := b.cfg.BotPrefix
	return strings.Join([]string{
		"🎤 Broken Microphone",
		"",
		"Channel commands:",
		"• " + p + "join / " + p + "leave — enter or leave the league",
		"• " + p + "set_channel — make this channel the announcement channel",
		"• " + p + "queue_add <prompt> / " + p + "queue_view / " + p + "queue_remove <n> / " + p + "queue_shuffle [on|off]",
		"• " + p + "start_round [prompt] — begin a round (uses the queue without a prompt)",
		"• " + p + "close_submissions / " + p + "finish_round — advance the round manually",
		"• " + p + "status — show round progress",
		"• " + p + "listen <n> — play a submission's audio",
		"",
		"DM commands:",
		"• " + p + "submit_song <url> — or just send a YouTube link",
		"• " + p + "vote 1:5 3:3 5:2 — distribute your points",
	}, "\n")
}
