package flows

import (
	"sync"

	"nightbot/internal/media"
)

type StateKind int

const (
	Idle StateKind = iota
	AwaitingDeleteMedia
	AwaitingScheduledMedia
)

func (k StateKind) String() string {
	switch k {
	case AwaitingDeleteMedia:
		return "awaiting_delete_media"
	case AwaitingScheduledMedia:
		return "awaiting_scheduled_media"
	default:
		return "idle"
	}
}

// State is the pending input of one user. Time is only meaningful for
// AwaitingScheduledMedia.
type State struct {
	Kind StateKind
	Time media.TimeOfDay
}

func IdleState() State { return State{} }

func AwaitingDelete() State { return State{Kind: AwaitingDeleteMedia} }

func AwaitingSchedule(at media.TimeOfDay) State {
	return State{Kind: AwaitingScheduledMedia, Time: at}
}

// PendingStore holds per-user pending input in memory. Idle users have no entry.
type PendingStore struct {
	mu sync.Mutex
	m  map[int64]State
}

func NewPendingStore() *PendingStore {
	return &PendingStore{m: map[int64]State{}}
}

func (p *PendingStore) Get(uid int64) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m[uid]
}

func (p *PendingStore) Set(uid int64, st State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.Kind == Idle {
		delete(p.m, uid)
		return
	}
	p.m[uid] = st
}

func (p *PendingStore) Reset(uid int64) { p.Set(uid, IdleState()) }

// Len returns the number of users with pending input.
func (p *PendingStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
