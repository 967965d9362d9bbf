package domain

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("session not found")

// InviteRegistry owns every pending invite. Removal is the linearization
// point for the accept/decline/expiry race - whichever caller Takes the
// entry first wins, the others observe a miss.
type InviteRegistry struct {
	mu      sync.Mutex
	invites map[uuid.UUID]*GameInvite
}

func NewInviteRegistry() *InviteRegistry {
	return &InviteRegistry{invites: make(map[uuid.UUID]*GameInvite)}
}

func (r *InviteRegistry) Put(invite *GameInvite) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.invites[invite.ID] = invite
}

func (r *InviteRegistry) Get(id uuid.UUID) (GameInvite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invite, ok := r.invites[id]
	if !ok {
		return GameInvite{}, false
	}

	return *invite, true
}

// Take removes and returns the invite in a single step.
func (r *InviteRegistry) Take(id uuid.UUID) (GameInvite, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	invite, ok := r.invites[id]
	if !ok {
		return GameInvite{}, false
	}

	delete(r.invites, id)
	return *invite, true
}

// TakePendingFrom removes every pending invite for the ordered
// (from, to) pair. Used to supersede an older invite before a new one is
// registered - at most one pending invite may exist per ordered pair.
func (r *InviteRegistry) TakePendingFrom(fromUserID, toUserID uuid.UUID) []GameInvite {
	r.mu.Lock()
	defer r.mu.Unlock()

	var taken []GameInvite
	for id, invite := range r.invites {
		if invite.FromUserID == fromUserID && invite.ToUserID == toUserID && invite.Status == InviteStatusPending {
			taken = append(taken, *invite)
			delete(r.invites, id)
		}
	}

	return taken
}

// SessionRegistry owns the in-memory sessions, one mutex per session id plus
// per-player mutexes held across the whole accept-and-create sequence.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*GameSession
	locks    map[uuid.UUID]*sync.Mutex

	playerMu    sync.Mutex
	playerLocks map[uuid.UUID]*sync.Mutex
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions:    make(map[uuid.UUID]*GameSession),
		locks:       make(map[uuid.UUID]*sync.Mutex),
		playerLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (r *SessionRegistry) Put(session *GameSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session
	if _, ok := r.locks[session.ID]; !ok {
		r.locks[session.ID] = &sync.Mutex{}
	}
}

func (r *SessionRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	delete(r.locks, id)
}

// Snapshot returns a copy of the session taken under its lock.
func (r *SessionRegistry) Snapshot(id uuid.UUID) (GameSession, bool) {
	var snapshot GameSession

	err := r.With(id, func(s *GameSession) error {
		snapshot = *s
		return nil
	})
	if err != nil {
		return GameSession{}, false
	}

	return snapshot, true
}

// With runs fn with the session held under its per-id mutex. All session
// mutation goes through here.
func (r *SessionRegistry) With(id uuid.UUID, fn func(*GameSession) error) error {
	r.mu.RLock()
	session, ok := r.sessions[id]
	lock := r.locks[id]
	r.mu.RUnlock()

	if !ok {
		return ErrSessionNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	return fn(session)
}

// ActiveForPlayers reports whether any non-terminal session involves any of
// the given players.
func (r *SessionRegistry) ActiveForPlayers(userIDs ...uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, session := range r.sessions {
		if session.Status.Terminal() {
			continue
		}

		for _, userID := range userIDs {
			if session.HasPlayer(userID) {
				return true
			}
		}
	}

	return false
}

// LockPair acquires both players' mutexes in a stable order and returns the
// release func. Held across the whole invite-accept check-and-create
// sequence - any two accepts sharing either player contend on that player's
// mutex, so neither pair can pass the conflict check while the other is
// mid-create.
func (r *SessionRegistry) LockPair(a, b uuid.UUID) func() {
	first, second := a, b
	if second.String() < first.String() {
		first, second = second, first
	}

	locks := []*sync.Mutex{r.playerLock(first)}
	if second != first {
		locks = append(locks, r.playerLock(second))
	}

	for _, lock := range locks {
		lock.Lock()
	}

	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (r *SessionRegistry) playerLock(id uuid.UUID) *sync.Mutex {
	r.playerMu.Lock()
	defer r.playerMu.Unlock()

	lock, ok := r.playerLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.playerLocks[id] = lock
	}

	return lock
}
