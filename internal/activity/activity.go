// Package activity records authentication events against user accounts and
// exposes the global, newest-first activity view.
package activity

import (
	"context"
	"sort"
	"time"

	"github.com/ftauth/identity/internal/database"
	"github.com/ftauth/identity/internal/model"
	"github.com/pkg/errors"
)

// Recorder appends activity entries to user logs.
type Recorder struct {
	db  database.ActivityDB
	now func() time.Time
}

// NewRecorder creates a recorder backed by db.
func NewRecorder(db database.ActivityDB) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// Record appends an entry for action to the user's log, stamped with the
// current time and the originating client address.
func (r *Recorder) Record(ctx context.Context, userID string, action model.Action, ip string) (model.LogEntry, error) {
	entry := model.LogEntry{
		Action: action,
		// Stored timestamps have millisecond precision.
		Timestamp: r.now().UTC().Truncate(time.Millisecond),
		IP:        ip,
	}
	if err := r.db.AppendLog(ctx, userID, entry); err != nil {
		return entry, errors.Wrapf(err, "recording %s for user %s", action, userID)
	}
	return entry, nil
}

// ListAll flattens every user's log into a single list annotated with the
// owning user, ordered by timestamp descending. Ties keep a stable order by
// user ID and then by position in the user's log.
func (r *Recorder) ListAll(ctx context.Context) ([]*model.ActivityEntry, error) {
	users, err := r.db.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})

	entries := make([]*model.ActivityEntry, 0)
	for _, user := range users {
		for i := len(user.Logs) - 1; i >= 0; i-- {
			entries = append(entries, &model.ActivityEntry{
				LogEntry: user.Logs[i],
				UserID:   user.ID,
				Username: user.Username,
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}
