package domain

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func pendingInvite(from, to uuid.UUID) *GameInvite {
	return &GameInvite{
		ID:         uuid.New(),
		FromUserID: from,
		ToUserID:   to,
		CreatedAt:  time.Now(),
		Status:     InviteStatusPending,
	}
}

func Test_InviteRegistry_Take_Removes_The_Invite(t *testing.T) {
	// Arrange
	registry := NewInviteRegistry()
	invite := pendingInvite(uuid.New(), uuid.New())
	registry.Put(invite)

	// Act
	taken, ok := registry.Take(invite.ID)

	// Assert
	require.True(t, ok)
	require.Equal(t, invite.ID, taken.ID)

	_, ok = registry.Get(invite.ID)
	require.False(t, ok)
}

func Test_InviteRegistry_Take_Succeeds_Exactly_Once_Under_Contention(t *testing.T) {
	// Arrange
	registry := NewInviteRegistry()
	invite := pendingInvite(uuid.New(), uuid.New())
	registry.Put(invite)

	var wins int64
	var wg sync.WaitGroup

	// Act
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := registry.Take(invite.ID); ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	// Assert
	require.Equal(t, int64(1), wins)
}

func Test_TakePendingFrom_Removes_Only_The_Ordered_Pairs_Pending_Invites(t *testing.T) {
	// Arrange
	registry := NewInviteRegistry()

	from := uuid.New()
	to := uuid.New()

	superseded := pendingInvite(from, to)
	reverse := pendingInvite(to, from)
	unrelated := pendingInvite(uuid.New(), to)

	registry.Put(superseded)
	registry.Put(reverse)
	registry.Put(unrelated)

	// Act
	taken := registry.TakePendingFrom(from, to)

	// Assert
	require.Len(t, taken, 1)
	require.Equal(t, superseded.ID, taken[0].ID)

	_, ok := registry.Get(reverse.ID)
	require.True(t, ok)

	_, ok = registry.Get(unrelated.ID)
	require.True(t, ok)
}

func Test_SessionRegistry_With_Returns_ErrSessionNotFound_For_Unknown_Session(t *testing.T) {
	// Arrange
	registry := NewSessionRegistry()

	// Act
	err := registry.With(uuid.New(), func(*GameSession) error { return nil })

	// Assert
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func Test_SessionRegistry_Snapshot_Returns_A_Copy(t *testing.T) {
	// Arrange
	registry := NewSessionRegistry()
	session := testSession()
	registry.Put(session)

	// Act
	snapshot, ok := registry.Snapshot(session.ID)
	snapshot.Status = StatusFinished

	// Assert
	require.True(t, ok)
	require.Equal(t, StatusWaiting, session.Status)
}

func Test_SessionRegistry_ActiveForPlayers_Sees_Non_Terminal_Sessions_Only(t *testing.T) {
	// Arrange
	registry := NewSessionRegistry()

	active := testSession()
	finished := testSession()
	finished.MarkFinalized(ResultCompleted, nil)

	registry.Put(active)
	registry.Put(finished)

	// Assert
	require.True(t, registry.ActiveForPlayers(active.Player1.ID))
	require.True(t, registry.ActiveForPlayers(active.Player2.ID))
	require.False(t, registry.ActiveForPlayers(finished.Player1.ID))
	require.False(t, registry.ActiveForPlayers(uuid.New()))
}

func Test_SessionRegistry_Remove_Forgets_The_Session(t *testing.T) {
	// Arrange
	registry := NewSessionRegistry()
	session := testSession()
	registry.Put(session)

	// Act
	registry.Remove(session.ID)

	// Assert
	_, ok := registry.Snapshot(session.ID)
	require.False(t, ok)
}

func Test_LockPair_Is_Unordered(t *testing.T) {
	// Arrange
	registry := NewSessionRegistry()
	a, b := uuid.New(), uuid.New()

	unlock := registry.LockPair(a, b)

	acquired := make(chan struct{})
	go func() {
		unlock := registry.LockPair(b, a)
		close(acquired)
		unlock()
	}()

	// Assert - the reversed pair contends on the same mutex.
	select {
	case <-acquired:
		t.Fatal("reversed pair lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reversed pair lock never acquired after release")
	}
}

func Test_LockPair_Serializes_Pairs_Sharing_A_Player(t *testing.T) {
	// Arrange
	registry := NewSessionRegistry()
	shared, b, c := uuid.New(), uuid.New(), uuid.New()

	unlock := registry.LockPair(shared, b)

	acquired := make(chan struct{})
	go func() {
		unlock := registry.LockPair(shared, c)
		close(acquired)
		unlock()
	}()

	// Assert - a different pair involving the same player contends.
	select {
	case <-acquired:
		t.Fatal("overlapping pair lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("overlapping pair lock never acquired after release")
	}
}

func Test_LockPair_Does_Not_Block_Disjoint_Pairs(t *testing.T) {
	// Arrange
	registry := NewSessionRegistry()

	unlock := registry.LockPair(uuid.New(), uuid.New())
	defer unlock()

	acquired := make(chan struct{})
	go func() {
		unlock := registry.LockPair(uuid.New(), uuid.New())
		close(acquired)
		unlock()
	}()

	// Assert
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("disjoint pair lock blocked")
	}
}

func Test_SessionRegistry_With_Serializes_Mutation(t *testing.T) {
	// Arrange
	registry := NewSessionRegistry()
	session := testSession()
	registry.Put(session)

	var wg sync.WaitGroup

	// Act
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := registry.With(session.ID, func(s *GameSession) error {
				s.TimeRemaining--
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	// Assert
	snapshot, ok := registry.Snapshot(session.ID)
	require.True(t, ok)
	require.Equal(t, session.Duration-64, snapshot.TimeRemaining)
}
