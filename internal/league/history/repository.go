package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/zac-garby/broken-microphone/internal/league"
)

// Repository archives finished rounds in Postgres. Writes are best-effort from
// the caller's point of view: a failed save never blocks a round from closing.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type archivedEntry struct {
	EntryID     int    `json:"entry_id"`
	MemberID    string `json:"member_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Points      int    `json:"points"`
	Rank        int    `json:"rank"`
}

// SaveRound upserts a finished round keyed by its round ID, so a replayed
// finish overwrites rather than duplicates.
func (r *Repository) SaveRound(ctx context.Context, groupID string, round *league.Round, ranking []league.EntryScore) error {
	if r == nil || r.db == nil || round == nil {
		return nil
	}

	points := make(map[int]int, len(ranking))
	rank := make(map[int]int, len(ranking))
	for i, es := range ranking {
		points[es.EntryID] = es.Points
		rank[es.EntryID] = i + 1
	}

	entries := make([]archivedEntry, 0, len(round.Numbered))
	for i, s := range round.Numbered {
		id := i + 1
		entries = append(entries, archivedEntry{
			EntryID:     id,
			MemberID:    s.MemberID,
			URL:         s.URL,
			Title:       s.Title,
			Description: s.Description,
			Points:      points[id],
			Rank:        rank[id],
		})
	}
	entriesRaw, _ := json.Marshal(entries)
	votesRaw, _ := json.Marshal(round.Votes)

	winnerID := ""
	if len(ranking) > 0 {
		winnerID = round.Numbered[ranking[0].EntryID-1].MemberID
	}

	q := `INSERT INTO bm_rounds (
	    round_id, group_id, prompt, entries, votes, winner_id,
	    started_at, finished_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8
	  ) ON CONFLICT (round_id) DO UPDATE SET
	    group_id=EXCLUDED.group_id,
	    prompt=EXCLUDED.prompt,
	    entries=EXCLUDED.entries,
	    votes=EXCLUDED.votes,
	    winner_id=EXCLUDED.winner_id,
	    started_at=EXCLUDED.started_at,
	    finished_at=EXCLUDED.finished_at`

	_, err := r.db.ExecContext(ctx, q,
		round.ID, groupID, round.Prompt,
		string(entriesRaw), string(votesRaw), winnerID,
		round.StartedAt, time.Now(),
	)
	return err
}
