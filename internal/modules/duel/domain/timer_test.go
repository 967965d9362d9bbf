package domain

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Countdown_Ticks_Down_And_Expires_Exactly_Once(t *testing.T) {
	// Arrange
	timers := NewCountdownSet(10 * time.Millisecond)
	sessionID := uuid.New()

	var ticks, expirations int64
	done := make(chan struct{})

	// Act
	timers.Start(
		sessionID,
		time.Now(),
		60*time.Millisecond,
		func(id uuid.UUID, remaining time.Duration) {
			require.Equal(t, sessionID, id)
			require.GreaterOrEqual(t, remaining, time.Duration(0))
			atomic.AddInt64(&ticks, 1)
		},
		func(uuid.UUID) {
			atomic.AddInt64(&expirations, 1)
			close(done)
		},
	)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("countdown never expired")
	}

	// The goroutine exits after expire; give any stray tick time to land.
	time.Sleep(50 * time.Millisecond)

	// Assert
	require.Equal(t, int64(1), atomic.LoadInt64(&expirations))
	require.GreaterOrEqual(t, atomic.LoadInt64(&ticks), int64(1))
	require.False(t, timers.Active(sessionID))
}

func Test_Cancel_Prevents_Expiry(t *testing.T) {
	// Arrange
	timers := NewCountdownSet(10 * time.Millisecond)
	sessionID := uuid.New()

	var expirations int64

	timers.Start(
		sessionID,
		time.Now(),
		50*time.Millisecond,
		func(uuid.UUID, time.Duration) {},
		func(uuid.UUID) { atomic.AddInt64(&expirations, 1) },
	)

	// Act
	cancelled := timers.Cancel(sessionID)

	time.Sleep(120 * time.Millisecond)

	// Assert
	require.True(t, cancelled)
	require.Equal(t, int64(0), atomic.LoadInt64(&expirations))
	require.False(t, timers.Active(sessionID))
}

func Test_Cancel_Without_Armed_Countdown_Reports_False(t *testing.T) {
	// Arrange
	timers := NewCountdownSet(10 * time.Millisecond)

	// Act
	cancelled := timers.Cancel(uuid.New())

	// Assert
	require.False(t, cancelled)
}

func Test_Restart_Replaces_The_Previous_Countdown(t *testing.T) {
	// Arrange
	timers := NewCountdownSet(10 * time.Millisecond)
	sessionID := uuid.New()

	var firstExpired, secondExpired int64
	done := make(chan struct{})

	timers.Start(
		sessionID,
		time.Now(),
		40*time.Millisecond,
		func(uuid.UUID, time.Duration) {},
		func(uuid.UUID) { atomic.AddInt64(&firstExpired, 1) },
	)

	// Act - re-arm before the first countdown runs out.
	timers.Start(
		sessionID,
		time.Now(),
		80*time.Millisecond,
		func(uuid.UUID, time.Duration) {},
		func(uuid.UUID) {
			atomic.AddInt64(&secondExpired, 1)
			close(done)
		},
	)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement countdown never expired")
	}

	// Assert
	require.Equal(t, int64(0), atomic.LoadInt64(&firstExpired))
	require.Equal(t, int64(1), atomic.LoadInt64(&secondExpired))
}

func Test_Countdown_Recomputes_Remaining_From_The_Start_Anchor(t *testing.T) {
	// Arrange - started in the past, as after a process restart.
	timers := NewCountdownSet(10 * time.Millisecond)
	sessionID := uuid.New()

	expired := make(chan struct{})

	// Act
	timers.Start(
		sessionID,
		time.Now().Add(-time.Hour),
		30*time.Minute,
		func(uuid.UUID, time.Duration) {},
		func(uuid.UUID) { close(expired) },
	)

	// Assert - the deadline passed while "down", so expiry is immediate.
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("overdue countdown never expired")
	}
}
