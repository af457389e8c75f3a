// Package recall implements the self-delete utility: walking the bot's own
// recent messages in a chat and deleting them on request.
package recall

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/gosentinel/internal/onebot"
)

const (
	// Messages older than this are never deleted; hitting one ends the walk.
	maxAge = 100 * time.Second
	// Upper bound on history refetches per invocation.
	maxRefreshes = 5
	// Interval between delete calls.
	deleteEvery = 500 * time.Millisecond
)

// Walker deletes the bot's own recent messages from a group or friend chat.
type Walker struct {
	api     *onebot.API
	selfID  func() int64
	limiter *rate.Limiter
	now     func() time.Time
}

func NewWalker(api *onebot.API, selfID func() int64) *Walker {
	return &Walker{
		api:     api,
		selfID:  selfID,
		limiter: rate.NewLimiter(rate.Every(deleteEvery), 1),
		now:     time.Now,
	}
}

// Handle runs "recall <count> [group_id]". The walk targets the originating
// group for group messages and the originating friend for private ones; an
// explicit group_id argument overrides either. Bad arguments are ignored
// silently.
func (w *Walker) Handle(ctx context.Context, ev *onebot.MessageEvent, args []string) {
	if len(args) == 0 {
		return
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count <= 0 {
		return
	}

	var fetch func(context.Context, int) ([]onebot.HistoryMessage, error)
	switch {
	case len(args) > 1:
		gid, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return
		}
		fetch = w.groupFetch(gid)
	case ev.IsGroup():
		fetch = w.groupFetch(ev.GroupID)
	default:
		fetch = w.friendFetch(ev.UserID)
	}

	ids := w.collect(ctx, fetch, count)
	slog.Info("recall: walk finished", "requested", count, "collected", len(ids))
	w.deleteAll(ctx, ids)
}

func (w *Walker) groupFetch(groupID int64) func(context.Context, int) ([]onebot.HistoryMessage, error) {
	return func(ctx context.Context, count int) ([]onebot.HistoryMessage, error) {
		return w.api.GetGroupMsgHistory(ctx, groupID, 0, count, true)
	}
}

func (w *Walker) friendFetch(userID int64) func(context.Context, int) ([]onebot.HistoryMessage, error) {
	return func(ctx context.Context, count int) ([]onebot.HistoryMessage, error) {
		return w.api.GetFriendMsgHistory(ctx, userID, 0, count, true)
	}
}

// collect scans newest-first for up to count of the bot's own deletable
// messages. Each refresh refetches from the top with a window of
// (refresh+1)*count and rebuilds the candidate list, so a larger window
// always covers the previous one. The walk ends early on an expired
// message or a batch shorter than requested.
func (w *Walker) collect(ctx context.Context, fetch func(context.Context, int) ([]onebot.HistoryMessage, error), count int) []int64 {
	self := w.selfID()
	var ids []int64
	for loop := 0; loop < maxRefreshes; loop++ {
		size := (loop + 1) * count
		batch, err := fetch(ctx, size)
		if err != nil {
			slog.Debug("recall: history fetch failed", "error", err)
			return ids
		}

		ids = ids[:0]
		expired := false
		for _, m := range batch {
			if len(ids) >= count {
				break
			}
			if m.UserID != self || m.RawMessage == "" {
				continue
			}
			if w.now().Sub(time.Unix(m.Time, 0)) > maxAge {
				expired = true
				break
			}
			ids = append(ids, m.MessageID)
		}
		if len(ids) >= count || expired || len(batch) < size {
			break
		}
	}
	return ids
}

func (w *Walker) deleteAll(ctx context.Context, ids []int64) {
	for _, id := range ids {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		if err := w.api.DeleteMsg(ctx, id); err != nil {
			slog.Debug("recall: delete failed", "message_id", id, "error", err)
		}
	}
}
