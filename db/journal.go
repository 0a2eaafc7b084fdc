package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/livewatch/notify"
	"github.com/onnwee/livewatch/platform"
	"github.com/onnwee/livewatch/telemetry"
)

// Journal records transitions and chat comments. It implements notify.Notifier
// and its RecordComment is a watchdog.EventFunc.
type Journal struct {
	DB       *sql.DB
	Platform string
	Account  string

	mu     sync.Mutex
	liveID string
}

func (j *Journal) Name() string { return "journal" }

// Notify inserts one transition row. A live event becomes the tag for
// subsequent comments; an offline event clears it.
func (j *Journal) Notify(ctx context.Context, ev notify.Event) error {
	_, err := j.DB.ExecContext(ctx, `INSERT INTO live_transitions (id, platform, account, kind, reason, action, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Platform, ev.Account, ev.Kind, ev.Reason, ev.Action, ev.At.UTC())
	if err != nil {
		return err
	}
	j.mu.Lock()
	if ev.Kind == notify.KindLive {
		j.liveID = ev.ID
	} else {
		j.liveID = ""
	}
	j.mu.Unlock()
	return nil
}

// RecordComment stores comment events; other kinds are ignored. Errors are logged.
func (j *Journal) RecordComment(ctx context.Context, ev platform.Event) {
	if ev.Kind != platform.EventComment {
		return
	}
	j.mu.Lock()
	liveID := j.liveID
	j.mu.Unlock()
	var tid sql.NullString
	if liveID != "" {
		tid = sql.NullString{String: liveID, Valid: true}
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := j.DB.ExecContext(ctx, `INSERT INTO chat_comments (transition_id, platform, account, username, message, at)
		VALUES ($1, $2, $3, $4, $5, $6)`, tid, j.Platform, j.Account, ev.User, ev.Text, at.UTC()); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("failed to insert chat comment", slog.String("component", "journal"), slog.Any("err", err))
	}
}

// TransitionRow is one stored transition.
type TransitionRow struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Reason   string    `json:"reason"`
	Action   string    `json:"action,omitempty"`
	At       time.Time `json:"at"`
	Comments int       `json:"comments"`
}

// Recent lists the newest transitions for the journal's account, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]TransitionRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := j.DB.QueryContext(ctx, `SELECT t.id, t.kind, t.reason, t.action, t.at,
			(SELECT COUNT(*) FROM chat_comments c WHERE c.transition_id = t.id)
		FROM live_transitions t
		WHERE t.platform = $1 AND t.account = $2
		ORDER BY t.at DESC
		LIMIT $3`, j.Platform, j.Account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]TransitionRow, 0, limit)
	for rows.Next() {
		var r TransitionRow
		if err := rows.Scan(&r.ID, &r.Kind, &r.Reason, &r.Action, &r.At, &r.Comments); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
