package core

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stakeledger/core/eventstore"
	"stakeledger/core/types"
	"stakeledger/observability"
)

const eventHistoryLimit = 2048

func cloneEntry(entry eventstore.Entry) eventstore.Entry {
	cloned := entry
	if len(entry.Attributes) > 0 {
		cloned.Attributes = make(map[string]string, len(entry.Attributes))
		for k, v := range entry.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

// publishEvent journals the event, appends it to the in-memory history, and
// fans it out to live subscribers. Slow subscribers are skipped rather than
// blocking the ledger.
func (n *Node) publishEvent(event *types.Event) {
	if n == nil || event == nil {
		return
	}
	now := time.Now()

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan eventstore.Entry)
	}
	var entry eventstore.Entry
	if n.journal != nil {
		journalled, err := n.journal.Append(event.Type, event.Attributes, now)
		if err == nil {
			n.streamSeq = journalled.Sequence
			entry = journalled
		} else {
			slog.Error("events: journal append failed", "type", event.Type, "error", err)
		}
	}
	if entry.Sequence == 0 {
		n.streamSeq++
		entry = eventstore.Entry{
			ID:         uuid.NewString(),
			Sequence:   n.streamSeq,
			Type:       event.Type,
			Timestamp:  now.UTC(),
			Attributes: event.CloneAttributes(),
		}
	}
	n.streamHistory = append(n.streamHistory, cloneEntry(entry))
	if len(n.streamHistory) > eventHistoryLimit {
		excess := len(n.streamHistory) - eventHistoryLimit
		trimmed := make([]eventstore.Entry, eventHistoryLimit)
		copy(trimmed, n.streamHistory[excess:])
		n.streamHistory = trimmed
	}
	subscribers := make([]chan eventstore.Entry, 0, len(n.streamSubs))
	for _, ch := range n.streamSubs {
		subscribers = append(subscribers, ch)
	}
	n.streamMu.Unlock()

	observability.Events().RecordPublished(entry.Type)

	broadcast := cloneEntry(entry)
	for _, ch := range subscribers {
		select {
		case ch <- broadcast:
		default:
		}
	}
}

// EventsSubscribe registers a subscriber for ledger events starting after the
// supplied cursor. The backlog replays journalled entries when a journal is
// attached, falling back to the in-memory history otherwise. An empty or
// unparsable cursor replays from the beginning.
func (n *Node) EventsSubscribe(ctx context.Context, cursor string) (<-chan eventstore.Entry, func(), []eventstore.Entry, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan eventstore.Entry, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan eventstore.Entry)
	}
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	var backlog []eventstore.Entry
	if n.journal != nil {
		replayed, err := n.journal.ReplaySince(since, 0)
		if err != nil {
			delete(n.streamSubs, id)
			n.streamMu.Unlock()
			return nil, nil, nil, err
		}
		backlog = replayed
	} else {
		for _, entry := range n.streamHistory {
			if entry.Sequence > since {
				backlog = append(backlog, cloneEntry(entry))
			}
		}
	}
	n.streamMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.streamMu.Lock()
			sub, ok := n.streamSubs[id]
			if ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			n.streamMu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}
