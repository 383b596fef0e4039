/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package auditfeed

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/require"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/common/db/leveldb"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/typeddata"
)

// setupTestFeed opens a feed on a shared in-memory database named after the
// test, so writer and reader pools see the same data.
func setupTestFeed(t *testing.T) *Feed {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(t.Name()), pragmas)
	f, err := openDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

type fixture struct {
	ledger *ledger.Ledger
	clock  *fakeclock.FakeClock
	admin  *crypto.PrivateKey
}

func testKey(t *testing.T, seed string) *crypto.PrivateKey {
	k, err := crypto.HexToPrivateKey(crypto.Keccak256Hash([]byte(seed)).Hex())
	require.NoError(t, err)
	return k
}

func newLedger(t *testing.T) *fixture {
	f := &fixture{
		clock: fakeclock.NewFakeClock(time.Unix(1700000000, 0)),
		admin: testKey(t, "admin"),
	}
	l, err := ledger.New(ledger.Config{
		DB:     leveldb.NewMemDB(),
		Domain: typeddata.Domain{Name: "Credential Registry", Version: "1", ChainID: 31337},
		Admin:  f.admin.Address(),
		Clock:  f.clock,
	})
	require.NoError(t, err)
	f.ledger = l
	t.Cleanup(func() { l.Close() })
	return f
}

// issue issues n fresh documents one second apart, starting at doc byte first.
func (f *fixture) issue(t *testing.T, first byte, n int) {
	for i := 0; i < n; i++ {
		f.clock.Increment(time.Second)
		require.NoError(t, f.ledger.Issue(f.admin.Address(), crypto.BytesToHash([]byte{first + byte(i)})))
	}
}
