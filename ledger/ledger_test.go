/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/common/db/leveldb"
	"github.com/zhigui-projects/go-attest/typeddata"
)

var genesisTime = time.Unix(1700000000, 0)

func testKey(t *testing.T, seed string) *crypto.PrivateKey {
	k, err := crypto.HexToPrivateKey(crypto.Keccak256Hash([]byte(seed)).Hex())
	require.NoError(t, err)
	return k
}

func testDomain() typeddata.Domain {
	return typeddata.Domain{
		Name:              "Credential Registry",
		Version:           "1",
		ChainID:           31337,
		VerifyingContract: crypto.Address{0xc0, 0xff, 0xee},
	}
}

type fixture struct {
	ledger *Ledger
	clock  *fakeclock.FakeClock
	admin  *crypto.PrivateKey
	db     api.Database
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithDB(t, leveldb.NewMemDB())
}

func newFixtureWithDB(t *testing.T, db api.Database) *fixture {
	f := &fixture{
		clock: fakeclock.NewFakeClock(genesisTime),
		admin: testKey(t, "admin"),
		db:    db,
	}
	l, err := New(Config{DB: db, Domain: testDomain(), Admin: f.admin.Address(), Clock: f.clock})
	require.NoError(t, err)
	f.ledger = l
	t.Cleanup(func() { l.Close() })
	return f
}

func docHash(b byte) crypto.Hash {
	return crypto.BytesToHash([]byte{b})
}

func TestGenesis(t *testing.T) {
	f := newFixture(t)
	a := f.admin.Address()

	assert.True(t, f.ledger.HasRole(RoleAdmin, a))
	assert.True(t, f.ledger.HasRole(RoleIssuer, a))
	assert.Equal(t, uint64(0), f.ledger.Head(), "genesis is not logged")
	assert.Equal(t, []crypto.Address{a}, f.ledger.Members(RoleAdmin))

	_, err := New(Config{DB: leveldb.NewMemDB(), Domain: testDomain()})
	assert.Error(t, err)
}

func TestReopenRestoresState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	db, err := leveldb.Open(dir)
	require.NoError(t, err)

	clk := fakeclock.NewFakeClock(genesisTime)
	admin := testKey(t, "admin")
	issuer := testKey(t, "issuer")
	l, err := New(Config{DB: db, Domain: testDomain(), Admin: admin.Address(), Clock: clk})
	require.NoError(t, err)

	require.NoError(t, l.Grant(admin.Address(), RoleIssuer, issuer.Address()))
	require.NoError(t, l.Issue(issuer.Address(), docHash(1)))
	clk.Increment(time.Minute)
	require.NoError(t, l.Revoke(issuer.Address(), docHash(1)))
	require.NoError(t, l.Issue(admin.Address(), docHash(2)))
	require.NoError(t, l.Close())

	db, err = leveldb.Open(dir)
	require.NoError(t, err)
	other := testKey(t, "other")
	l, err = New(Config{DB: db, Domain: testDomain(), Admin: other.Address(), Clock: clk})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, uint64(4), l.Head())
	assert.False(t, l.HasRole(RoleAdmin, other.Address()), "genesis runs only on an empty store")
	assert.True(t, l.HasRole(RoleIssuer, issuer.Address()))
	assert.Equal(t, Status{Issued: true, Revoked: true, IssuedAt: genesisTime.Unix(), Issuer: issuer.Address()}, l.Verify(docHash(1)))
	assert.Equal(t, Status{Issued: true, IssuedAt: genesisTime.Unix() + 60, Issuer: admin.Address()}, l.Verify(docHash(2)))

	rec, ok := l.Record(docHash(1))
	require.True(t, ok)
	assert.Equal(t, genesisTime.Unix()+60, rec.RevokedAt)
	assert.Equal(t, issuer.Address(), rec.RevokedBy)

	// the log keeps growing from the restored head
	require.NoError(t, l.Issue(admin.Address(), docHash(3)))
	events, err := l.Events(0, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, []EventKind{RoleGranted, Issued, Revoked, Issued, Issued}, kinds(events))
}

func TestReopenWithOtherDomain(t *testing.T) {
	f := newFixture(t)
	domain := testDomain()
	domain.ChainID = 1
	_, err := New(Config{DB: f.db, Domain: domain, Clock: f.clock})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain separator")
}

func TestConcurrentIssueSameHash(t *testing.T) {
	f := newFixture(t)
	a := f.admin.Address()

	const n = 32
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.ledger.Issue(a, docHash(0xAA))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, ErrAlreadyIssued, errors.Cause(err))
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, uint64(1), f.ledger.Head())
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	f := newFixture(t)
	a := f.admin.Address()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			assert.NoError(t, f.ledger.Issue(a, docHash(b)))
			assert.True(t, f.ledger.Verify(docHash(b)).Issued)
			assert.NoError(t, f.ledger.Revoke(a, docHash(b)))
		}(byte(i))
	}
	wg.Wait()

	events, err := f.ledger.Events(1, 0)
	require.NoError(t, err)
	require.Len(t, events, 100)
	issued := make(map[crypto.Hash]uint64)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Sequence)
		switch ev.Kind {
		case Issued:
			issued[ev.DocHash] = ev.Sequence
		case Revoked:
			seq, ok := issued[ev.DocHash]
			assert.True(t, ok && seq < ev.Sequence, "revoked before issued")
		}
	}
}

// failingDB fails every batch write once armed.
type failingDB struct {
	api.Database
	fail bool
}

func (d *failingDB) Write(b api.Batch) error {
	if d.fail {
		return errors.New("disk full")
	}
	return d.Database.Write(b)
}

func TestFailedWriteLeavesStateUntouched(t *testing.T) {
	db := &failingDB{Database: leveldb.NewMemDB()}
	f := newFixtureWithDB(t, db)
	a := f.admin.Address()
	b := testKey(t, "bob").Address()

	db.fail = true
	err := f.ledger.Issue(a, docHash(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, Status{}, f.ledger.Verify(docHash(1)))
	assert.Error(t, f.ledger.Grant(a, RoleIssuer, b))
	assert.False(t, f.ledger.HasRole(RoleIssuer, b))
	assert.Equal(t, uint64(0), f.ledger.Head())

	db.fail = false
	require.NoError(t, f.ledger.Issue(a, docHash(1)))
	assert.Equal(t, uint64(1), f.ledger.Head())
}

func kinds(events []*Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}
