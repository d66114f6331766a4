package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"logitalk/internal/models"
)

// Backend is the HTTP collaborator interface the engine fetches
// conversation data through.
type Backend interface {
	FetchHistory(ctx context.Context, counterpartID int) ([]models.Message, error)
	FetchSummaries(ctx context.Context) ([]models.Summary, error)
	MarkRead(ctx context.Context, counterpartID int) error
}

// Outbound hands message sends to the queue.
type Outbound interface {
	EnqueueSend(to int, text, tmpID string)
}

// ReadAcker sends a read acknowledgment over the live channel.
type ReadAcker interface {
	MarkRead(counterpartID int) error
}

type pendingSend struct {
	to        int
	text      string
	createdAt time.Time
}

// Engine owns the client's conversation state: the open conversation's
// entry list and the summary list. Every handler runs to completion
// under one lock, so events mutate shared state one at a time.
type Engine struct {
	mu sync.Mutex

	selfID   int
	backend  Backend
	outbound Outbound
	readAck  ReadAcker

	// active is the single authoritative pointer to the open
	// conversation; handlers read it fresh at event time.
	active   int
	fetchSeq uint64

	entries   []Entry
	summaries []models.Summary

	// ledger matches an optimistic send to its eventual echo, strictly
	// by the client-generated tmp id.
	ledger map[string]pendingSend

	// seen holds every canonical id already applied, absorbing
	// network-level redelivery.
	seen map[int]struct{}

	online map[int]struct{}

	onChange func()
}

// NewEngine constructs an engine for the local user.
func NewEngine(selfID int, backend Backend) *Engine {
	return &Engine{
		selfID:  selfID,
		backend: backend,
		ledger:  make(map[string]pendingSend),
		seen:    make(map[int]struct{}),
		online:  make(map[int]struct{}),
	}
}

// BindOutbound attaches the queue used for sends.
func (e *Engine) BindOutbound(outbound Outbound) {
	e.outbound = outbound
}

// BindReadAcker attaches the live-channel read acknowledger.
func (e *Engine) BindReadAcker(readAck ReadAcker) {
	e.readAck = readAck
}

// SetOnChange installs a callback invoked after every state change.
func (e *Engine) SetOnChange(fn func()) {
	e.onChange = fn
}

// Select opens the conversation with counterpartID: fetches history,
// maps each record to a me/them entry, zeroes the unread count and
// marks the history read. If the user switches away before the fetch
// resolves, the stale result is discarded, not applied.
func (e *Engine) Select(ctx context.Context, counterpartID int) error {
	e.mu.Lock()
	e.active = counterpartID
	e.fetchSeq++
	seq := e.fetchSeq
	e.entries = nil
	for i := range e.summaries {
		if e.summaries[i].CounterpartID == counterpartID {
			e.summaries[i].UnreadCount = 0
		}
	}
	e.mu.Unlock()
	e.notify()

	msgs, err := e.backend.FetchHistory(ctx, counterpartID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.active != counterpartID || e.fetchSeq != seq {
		// A newer selection won the race; this result no longer
		// belongs on screen.
		e.mu.Unlock()
		return nil
	}
	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		role := RoleThem
		if m.SenderID == e.selfID {
			role = RoleMe
		}
		entries = append(entries, Entry{
			State:     EntryDelivered,
			ID:        m.ID,
			Role:      role,
			Text:      m.Body,
			CreatedAt: m.CreatedAt,
			Read:      m.Read,
		})
		e.seen[m.ID] = struct{}{}
	}
	e.entries = entries
	e.mu.Unlock()
	e.notify()

	return e.backend.MarkRead(ctx, counterpartID)
}

// Send creates an optimistic pending entry for the active conversation
// and hands the message to the outbound queue. Whitespace-only text is
// a no-op. Returns the generated tmp id.
func (e *Engine) Send(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	e.mu.Lock()
	to := e.active
	if to == 0 {
		e.mu.Unlock()
		return "", false
	}

	tmpID := uuid.NewString()
	now := time.Now()
	e.entries = append(e.entries, Entry{
		State:     EntryPending,
		TmpID:     tmpID,
		Role:      RoleMe,
		Text:      text,
		CreatedAt: now,
	})
	e.ledger[tmpID] = pendingSend{to: to, text: text, createdAt: now}
	e.touchSummary(to, text, now, false, nil)
	e.mu.Unlock()
	e.notify()

	e.outbound.EnqueueSend(to, text, tmpID)
	return tmpID, true
}

// HandleDelivered applies a canonical message event. A sender echo
// replaces its pending entry in place, matched by tmp id alone; an
// inbound message either appends to the open conversation (and is
// immediately acknowledged read) or bumps the counterpart's unread
// count. Redelivered ids are absorbed.
func (e *Engine) HandleDelivered(msg models.Message, tmpID string) {
	var ackCounterpart int

	e.mu.Lock()
	if _, dup := e.seen[msg.ID]; dup {
		e.mu.Unlock()
		return
	}
	e.seen[msg.ID] = struct{}{}

	if msg.SenderID == e.selfID {
		delete(e.ledger, tmpID)
		if e.active == msg.ReceiverID {
			replaced := false
			if tmpID != "" {
				for i := range e.entries {
					if e.entries[i].TmpID == tmpID {
						e.entries[i] = Entry{
							State:     EntryDelivered,
							ID:        msg.ID,
							TmpID:     tmpID,
							Role:      RoleMe,
							Text:      msg.Body,
							CreatedAt: msg.CreatedAt,
							Read:      msg.Read,
						}
						replaced = true
						break
					}
				}
			}
			if !replaced {
				// Echo arrived after the conversation was re-opened
				// and the pending entry was replaced by a fresh fetch.
				e.entries = append(e.entries, Entry{
					State:     EntryDelivered,
					ID:        msg.ID,
					Role:      RoleMe,
					Text:      msg.Body,
					CreatedAt: msg.CreatedAt,
					Read:      msg.Read,
				})
			}
		}
		e.touchSummary(msg.ReceiverID, msg.Body, msg.CreatedAt, false, nil)
		e.mu.Unlock()
		e.notify()
		return
	}

	if e.active == msg.SenderID {
		e.entries = append(e.entries, Entry{
			State:     EntryDelivered,
			ID:        msg.ID,
			Role:      RoleThem,
			Text:      msg.Body,
			CreatedAt: msg.CreatedAt,
			Read:      msg.Read,
		})
		e.touchSummary(msg.SenderID, msg.Body, msg.CreatedAt, false, &msg)
		ackCounterpart = msg.SenderID
	} else {
		e.touchSummary(msg.SenderID, msg.Body, msg.CreatedAt, true, &msg)
	}
	e.mu.Unlock()
	e.notify()

	if ackCounterpart != 0 && e.readAck != nil {
		// The conversation is open, so the sender learns immediately
		// that the message was read.
		_ = e.readAck.MarkRead(ackCounterpart)
	}
}

// HandleRead flips read on every own message in the open conversation
// when its counterpart acknowledges. The flip is monotonic.
func (e *Engine) HandleRead(readerID int) {
	e.mu.Lock()
	if e.active == readerID {
		for i := range e.entries {
			if e.entries[i].Role == RoleMe {
				e.entries[i].Read = true
			}
		}
	}
	e.mu.Unlock()
	e.notify()
}

// HandlePermanentFailure marks the pending entry failed after the
// outbound queue exhausted its retries. The entry stays visible and the
// summary preview is left alone.
func (e *Engine) HandlePermanentFailure(tmpID string) {
	e.mu.Lock()
	delete(e.ledger, tmpID)
	for i := range e.entries {
		if e.entries[i].TmpID == tmpID && e.entries[i].State == EntryPending {
			e.entries[i].State = EntryFailed
			break
		}
	}
	e.mu.Unlock()
	e.notify()
}

// HandleOnline records a user coming online.
func (e *Engine) HandleOnline(userID int) {
	e.mu.Lock()
	e.online[userID] = struct{}{}
	e.mu.Unlock()
	e.notify()
}

// HandleOffline records a user going offline.
func (e *Engine) HandleOffline(userID int) {
	e.mu.Lock()
	delete(e.online, userID)
	e.mu.Unlock()
	e.notify()
}

// HandleSnapshot replaces the online set with a full presence sync.
func (e *Engine) HandleSnapshot(userIDs []int) {
	e.mu.Lock()
	e.online = make(map[int]struct{}, len(userIDs))
	for _, id := range userIDs {
		e.online[id] = struct{}{}
	}
	e.mu.Unlock()
	e.notify()
}

// Refresh replaces the summary list with a fresh server fetch, keeping
// the active conversation's unread count at zero.
func (e *Engine) Refresh(ctx context.Context) error {
	summaries, err := e.backend.FetchSummaries(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for i := range summaries {
		if summaries[i].CounterpartID == e.active {
			summaries[i].UnreadCount = 0
		}
	}
	e.summaries = summaries
	e.mu.Unlock()
	e.notify()
	return nil
}

// Active returns the open conversation's counterpart id, zero if none.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Entries returns a copy of the open conversation's entry list.
func (e *Engine) Entries() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

// Summaries returns a copy of the conversation list with the online
// flag projected from the presence set.
func (e *Engine) Summaries() []models.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Summary, len(e.summaries))
	copy(out, e.summaries)
	for i := range out {
		_, out[i].IsOnline = e.online[out[i].CounterpartID]
	}
	return out
}

// IsOnline reports whether a user is in the presence set.
func (e *Engine) IsOnline(userID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.online[userID]
	return ok
}

// touchSummary updates the counterpart's summary row and moves it to
// the front; a missing row is synthesized from the event's embedded
// sender fields. Callers hold e.mu.
func (e *Engine) touchSummary(counterpartID int, lastMessage string, at time.Time, bumpUnread bool, msg *models.Message) {
	for i := range e.summaries {
		if e.summaries[i].CounterpartID != counterpartID {
			continue
		}
		s := e.summaries[i]
		s.LastMessage = lastMessage
		s.LastMessageAt = at
		if bumpUnread {
			s.UnreadCount++
		}
		copy(e.summaries[1:i+1], e.summaries[:i])
		e.summaries[0] = s
		return
	}

	s := models.Summary{
		CounterpartID: counterpartID,
		LastMessage:   lastMessage,
		LastMessageAt: at,
	}
	if msg != nil {
		s.Name = msg.SenderName
		s.AvatarID = msg.SenderAvatar
	}
	if bumpUnread {
		s.UnreadCount = 1
	}
	e.summaries = append([]models.Summary{s}, e.summaries...)
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange()
	}
}
