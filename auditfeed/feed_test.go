/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package auditfeed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/common/db/leveldb"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/rpc"
	"github.com/zhigui-projects/go-attest/transport"
)

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	feed := setupTestFeed(t)
	f := newLedger(t)
	src := FromLedger(f.ledger)

	n, err := feed.Sync(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.issue(t, 1, 3)
	n, err = feed.Sync(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = feed.Sync(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.issue(t, 10, 2)
	n, err = feed.Sync(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	last, err := feed.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)

	want, err := f.ledger.Events(0, 0)
	require.NoError(t, err)
	got, err := feed.BySequence(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	feed := setupTestFeed(t)
	f := newLedger(t)
	a := f.admin.Address()
	bob := testKey(t, "bob").Address()
	doc := crypto.BytesToHash([]byte{0xAA})

	f.clock.Increment(time.Second)
	require.NoError(t, f.ledger.Issue(a, doc))
	f.clock.Increment(time.Second)
	require.NoError(t, f.ledger.Grant(a, ledger.RoleIssuer, bob))
	f.clock.Increment(time.Second)
	require.NoError(t, f.ledger.Revoke(bob, doc))
	f.issue(t, 1, 2)

	_, err := feed.Sync(ctx, FromLedger(f.ledger))
	require.NoError(t, err)

	history, err := feed.ByDocHash(ctx, doc)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.Issued, history[0].Kind)
	assert.Equal(t, ledger.Revoked, history[1].Kind)
	assert.Equal(t, bob, history[1].Actor)

	grants, err := feed.BySequence(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, ledger.RoleGranted, grants[0].Kind)
	assert.Equal(t, ledger.RoleIssuer, grants[0].Role)
	assert.Equal(t, bob, grants[0].Subject)

	start := time.Unix(1700000000, 0)
	window, err := feed.ByTimeWindow(ctx, start.Add(2*time.Second), start.Add(4*time.Second), 0)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, uint64(2), window[0].Sequence)
	assert.Equal(t, uint64(3), window[1].Sequence)

	limited, err := feed.ByTimeWindow(ctx, start, start.Add(time.Hour), 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	none, err := feed.ByDocHash(ctx, crypto.BytesToHash([]byte{0xFF}))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFollowLedger(t *testing.T) {
	feed := setupTestFeed(t)
	f := newLedger(t)
	f.issue(t, 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Follow(ctx, FromLedger(f.ledger)) }()

	f.issue(t, 10, 3)
	require.Eventually(t, func() bool {
		last, err := feed.Last(context.Background())
		return err == nil && last == 5
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop")
	}
}

func TestFollowStopsWhenLedgerCloses(t *testing.T) {
	feed := setupTestFeed(t)
	f := newLedger(t)

	done := make(chan error, 1)
	go func() { done <- feed.Follow(context.Background(), FromLedger(f.ledger)) }()

	f.issue(t, 1, 1)
	require.Eventually(t, func() bool {
		last, err := feed.Last(context.Background())
		return err == nil && last == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.ledger.Close())

	select {
	case err := <-done:
		assert.Equal(t, ErrStreamClosed, errors.Cause(err))
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop")
	}
}

func TestSyncFromRemoteNode(t *testing.T) {
	ctx := context.Background()
	feed := setupTestFeed(t)
	f := newLedger(t)
	f.issue(t, 1, 4)

	srv, err := transport.NewGrpcServer("127.0.0.1:0", nil)
	require.NoError(t, err)
	rpc.RegisterRegistryServer(srv.Server(), rpc.NewServer(f.ledger, leveldb.NewMemDB(), f.clock))
	go srv.Start()
	t.Cleanup(srv.Stop)

	conn, err := rpc.Dial(srv.Address(), nil)
	require.NoError(t, err)
	client := rpc.NewClient(conn, nil)
	t.Cleanup(func() { client.Close() })

	n, err := feed.Sync(ctx, FromClient(client))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	want, err := f.ledger.Events(0, 0)
	require.NoError(t, err)
	got, err := feed.BySequence(ctx, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	feed, err := Open(path)
	require.NoError(t, err)
	f := newLedger(t)
	f.issue(t, 1, 2)
	_, err = feed.Sync(context.Background(), FromLedger(f.ledger))
	require.NoError(t, err)
	require.NoError(t, feed.Close())

	feed, err = Open(path)
	require.NoError(t, err)
	defer feed.Close()
	last, err := feed.Last(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)

	_, err = Open("")
	assert.Error(t, err)
}
