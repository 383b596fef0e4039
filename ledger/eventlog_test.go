/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogOrder(t *testing.T) {
	f := newFixture(t)
	a := f.admin.Address()
	b := testKey(t, "bob").Address()

	calls := []func() error{
		func() error { return f.ledger.Issue(a, docHash(1)) },
		func() error { return f.ledger.Issue(a, docHash(1)) }, // fails
		func() error { return f.ledger.Grant(a, RoleIssuer, b) },
		func() error { return f.ledger.Issue(b, docHash(2)) },
		func() error { return f.ledger.Revoke(b, docHash(1)) },
		func() error { return f.ledger.Revoke(b, docHash(3)) }, // fails
		func() error { return f.ledger.RevokeRole(a, RoleIssuer, b) },
	}
	ok := 0
	for i, call := range calls {
		f.clock.Increment(time.Second)
		if call() == nil {
			ok++
		}
		assert.Equal(t, uint64(ok), f.ledger.Head(), "after call %d", i)
	}

	events, err := f.ledger.Events(0, 0)
	require.NoError(t, err)
	require.Len(t, events, ok)
	assert.Equal(t, []EventKind{Issued, RoleGranted, Issued, Revoked, RoleRevoked}, kinds(events))
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Sequence)
		if i > 0 {
			assert.True(t, ev.Timestamp > events[i-1].Timestamp)
		}
	}
	assert.Equal(t, docHash(2), events[2].DocHash)
	assert.Equal(t, b, events[3].Actor)

	window, err := f.ledger.Events(2, 3)
	require.NoError(t, err)
	assert.Equal(t, events[1:3], window)

	beyond, err := f.ledger.Events(9, 0)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	var seen []uint64
	require.NoError(t, f.ledger.Replay(3, func(ev *Event) bool {
		seen = append(seen, ev.Sequence)
		return ev.Sequence < 4
	}))
	assert.Equal(t, []uint64{3, 4}, seen)
}

func TestWatchReplaysThenFollows(t *testing.T) {
	f := newFixture(t)
	a := f.admin.Address()

	require.NoError(t, f.ledger.Issue(a, docHash(1)))
	require.NoError(t, f.ledger.Issue(a, docHash(2)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := f.ledger.Watch(ctx, 2)

	next := func() *Event {
		select {
		case ev := <-ch:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
			return nil
		}
	}

	assert.Equal(t, uint64(2), next().Sequence)

	go func() {
		for i := byte(3); i <= 20; i++ {
			f.ledger.Issue(a, docHash(i))
		}
	}()
	for seq := uint64(3); seq <= 20; seq++ {
		ev := next()
		require.Equal(t, seq, ev.Sequence)
		assert.Equal(t, docHash(byte(seq)), ev.DocHash)
	}

	cancel()
	for range ch {
	}
}

func TestWatchStopsOnClose(t *testing.T) {
	f := newFixture(t)
	ch := f.ledger.Watch(context.Background(), 1)
	require.NoError(t, f.ledger.Close())

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchStopsOnCloseWithStalledReader(t *testing.T) {
	f := newFixture(t)
	a := f.admin.Address()
	for i := byte(1); i <= 70; i++ {
		require.NoError(t, f.ledger.Issue(a, docHash(i)))
	}

	ch := f.ledger.Watch(context.Background(), 1)
	require.Eventually(t, func() bool { return len(ch) == cap(ch) }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.ledger.Close())

	timeout := time.After(5 * time.Second)
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				assert.True(t, n <= 70)
				return
			}
			n++
		case <-timeout:
			t.Fatal("watch stayed blocked after close")
		}
	}
}
