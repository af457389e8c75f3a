package onebot

import (
	"strings"
	"sync"
	"time"
)

// SentRecord snapshots the most recent outbound send or forward action,
// kept for interactive debugging of delivery problems.
type SentRecord struct {
	Time    time.Time
	Action  string
	Target  map[string]int64
	Message interface{}
	OK      bool
	Error   string
}

// SendRecorder tracks the last outbound send. Safe for concurrent use.
type SendRecorder struct {
	mu   sync.Mutex
	last *SentRecord
}

// observe records the action if it is a send and carries a payload.
// Forward-by-id actions have no payload and are skipped.
func (r *SendRecorder) observe(action string, params map[string]interface{}, err error) {
	if !strings.HasPrefix(action, "send_") && !strings.HasPrefix(action, "forward_") {
		return
	}
	payload, ok := params["message"]
	if !ok {
		if payload, ok = params["messages"]; !ok {
			return
		}
	}

	rec := &SentRecord{
		Time:    time.Now(),
		Action:  action,
		Target:  map[string]int64{},
		Message: payload,
		OK:      err == nil,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	for _, k := range []string{"user_id", "group_id"} {
		if v, ok := params[k]; ok {
			if id := toInt64(v); id != 0 {
				rec.Target[k] = id
			}
		}
	}

	r.mu.Lock()
	r.last = rec
	r.mu.Unlock()
}

// Last returns a copy of the most recent record, if any.
func (r *SendRecorder) Last() (SentRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return SentRecord{}, false
	}
	return *r.last, true
}
