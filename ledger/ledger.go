/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ledger implements the credential registry: a role table, a per
// document state machine (unissued, issued, revoked) and an append-only log
// of every transition, persisted together so each transition is atomic.
package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sync"
	"sync/atomic"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/common/log"
	"github.com/zhigui-projects/go-attest/typeddata"
)

var (
	recordPrefix = []byte("r/")
	memberPrefix = []byte("m/")
	eventPrefix  = []byte("e/")
	headKey      = []byte("meta/head")
	genesisKey   = []byte("meta/genesis")
	domainKey    = []byte("meta/domain")
)

// Config holds the construction parameters of a Ledger.
type Config struct {
	DB     api.Database
	Domain typeddata.Domain
	// Admin is granted ADMIN and ISSUER when DB is empty. It is ignored
	// when reopening an existing ledger.
	Admin  crypto.Address
	Clock  clock.Clock
	Logger api.Logger
}

// Ledger is the single owner of credential records, role memberships and
// the event log. Mutations are serialized; reads never block.
type Ledger struct {
	domain   typeddata.Domain
	db       api.Database
	clock    clock.Clock
	logger   api.Logger
	verifier *SignatureVerifier

	mut *sync.Mutex

	// published state, replaced only after a batch commits
	records *sync.Map // crypto.Hash -> *Record
	members *sync.Map // member -> struct{}
	head    atomic.Uint64

	feed   *feed
	closed chan struct{}
	once   sync.Once
}

// New opens the ledger stored in cfg.DB, bootstrapping the genesis admin
// if the store is empty.
func New(cfg Config) (*Ledger, error) {
	if cfg.DB == nil {
		return nil, errors.New("missing database")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger("module", "ledger")
	}

	l := &Ledger{
		domain:  cfg.Domain,
		db:      cfg.DB,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		mut:     &sync.Mutex{},
		records: &sync.Map{},
		members: &sync.Map{},
		feed:    newFeed(),
		closed:  make(chan struct{}),
	}
	l.verifier = NewSignatureVerifier(l)

	ok, err := l.db.Has(genesisKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := l.genesis(cfg.Admin); err != nil {
			return nil, err
		}
	} else if err := l.checkDomain(); err != nil {
		return nil, err
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	l.logger.Info("ledger opened", "domain", l.domain.Name, "chainId", l.domain.ChainID,
		"head", l.Head(), "admins", len(l.Members(RoleAdmin)))
	return l, nil
}

// Domain returns the typed data domain signatures are checked under.
func (l *Ledger) Domain() typeddata.Domain {
	return l.domain
}

// Close stops watchers and closes the database.
func (l *Ledger) Close() error {
	var err error
	l.once.Do(func() {
		l.mut.Lock()
		defer l.mut.Unlock()
		close(l.closed)
		err = l.db.Close()
	})
	return err
}

func (l *Ledger) genesis(admin crypto.Address) error {
	if admin.IsZero() {
		return errors.New("bootstrap admin required to initialize an empty ledger")
	}
	sep := l.domain.Separator()
	b := l.db.NewBatch()
	b.Put(memberKey(member{RoleAdmin, admin}), []byte{1})
	b.Put(memberKey(member{RoleIssuer, admin}), []byte{1})
	b.Put(domainKey, sep[:])
	b.Put(genesisKey, admin[:])
	if err := l.db.Write(b); err != nil {
		return errors.WithMessage(err, "failed writing genesis state")
	}
	l.logger.Info("ledger initialized", "admin", admin.Hex(), "domainSeparator", sep.Hex())
	return nil
}

func (l *Ledger) checkDomain() error {
	stored, err := l.db.Get(domainKey)
	if err != nil {
		return errors.WithMessage(err, "failed reading ledger domain")
	}
	sep := l.domain.Separator()
	if !bytes.Equal(stored, sep[:]) {
		return errors.Errorf("ledger was created under domain separator %x, configured domain gives %s", stored, sep)
	}
	return nil
}

// load rebuilds the published state from the store.
func (l *Ledger) load() error {
	var loadErr error
	err := l.db.Iterate(recordPrefix, prefixEnd(recordPrefix), func(_, value []byte) bool {
		rec := new(Record)
		if loadErr = json.Unmarshal(value, rec); loadErr != nil {
			return false
		}
		l.records.Store(rec.DocHash, rec)
		return true
	})
	if err == nil {
		err = errors.Wrap(loadErr, "corrupt credential record")
	}
	if err != nil {
		return err
	}

	err = l.db.Iterate(memberPrefix, prefixEnd(memberPrefix), func(key, _ []byte) bool {
		m, ok := parseMemberKey(key)
		if !ok {
			loadErr = errors.Errorf("corrupt role key %q", key)
			return false
		}
		l.members.Store(m, struct{}{})
		return true
	})
	if err == nil {
		err = loadErr
	}
	if err != nil {
		return err
	}

	raw, err := l.db.Get(headKey)
	switch {
	case err == api.ErrNotFound:
	case err != nil:
		return err
	case len(raw) != 8:
		return errors.Errorf("corrupt head sequence %x", raw)
	default:
		l.head.Store(binary.BigEndian.Uint64(raw))
	}
	return nil
}

// txn collects the effects of one transition.
type txn struct {
	now     int64
	seq     uint64
	batch   api.Batch
	records []*Record
	added   []member
	removed []member
	events  []*Event
}

// begin must be called with l.mut held.
func (l *Ledger) begin() *txn {
	return &txn{
		now:   l.clock.Now().Unix(),
		seq:   l.Head(),
		batch: l.db.NewBatch(),
	}
}

func (tx *txn) putRecord(rec *Record) {
	tx.records = append(tx.records, rec)
}

func (tx *txn) addMember(m member) {
	tx.added = append(tx.added, m)
}

func (tx *txn) removeMember(m member) {
	tx.removed = append(tx.removed, m)
}

func (tx *txn) appendEvent(ev *Event) {
	tx.seq++
	ev.Sequence = tx.seq
	ev.Timestamp = tx.now
	tx.events = append(tx.events, ev)
}

// commit writes tx in one batch and then publishes it. Nothing is published
// if the write fails. Must be called with l.mut held.
func (l *Ledger) commit(tx *txn) error {
	select {
	case <-l.closed:
		return errors.New("ledger closed")
	default:
	}

	for _, rec := range tx.records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "failed marshalling record")
		}
		tx.batch.Put(recordKey(rec.DocHash), raw)
	}
	for _, m := range tx.added {
		tx.batch.Put(memberKey(m), []byte{1})
	}
	for _, m := range tx.removed {
		tx.batch.Delete(memberKey(m))
	}
	for _, ev := range tx.events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return errors.Wrap(err, "failed marshalling event")
		}
		tx.batch.Put(eventKey(ev.Sequence), raw)
	}
	var head [8]byte
	binary.BigEndian.PutUint64(head[:], tx.seq)
	tx.batch.Put(headKey, head[:])

	if err := l.db.Write(tx.batch); err != nil {
		l.logger.Error("failed committing transition", "events", len(tx.events), "error", err)
		return err
	}

	for _, rec := range tx.records {
		l.records.Store(rec.DocHash, rec)
	}
	for _, m := range tx.added {
		l.members.Store(m, struct{}{})
	}
	for _, m := range tx.removed {
		l.members.Delete(m)
	}
	l.head.Store(tx.seq)
	l.feed.notify()
	for _, ev := range tx.events {
		l.logger.Debug("event appended", "sequence", ev.Sequence, "kind", ev.Kind)
	}
	return nil
}

func recordKey(h crypto.Hash) []byte {
	return append(append([]byte{}, recordPrefix...), h[:]...)
}

func memberKey(m member) []byte {
	k := append(append([]byte{}, memberPrefix...), string(m.role)...)
	k = append(k, '/')
	return append(k, m.id[:]...)
}

func parseMemberKey(key []byte) (member, bool) {
	rest := key[len(memberPrefix):]
	if len(rest) < crypto.AddressLength+2 || rest[len(rest)-crypto.AddressLength-1] != '/' {
		return member{}, false
	}
	role, err := ParseRole(string(rest[:len(rest)-crypto.AddressLength-1]))
	if err != nil {
		return member{}, false
	}
	var id crypto.Address
	copy(id[:], rest[len(rest)-crypto.AddressLength:])
	return member{role, id}, true
}

func eventKey(seq uint64) []byte {
	k := make([]byte, len(eventPrefix)+8)
	copy(k, eventPrefix)
	binary.BigEndian.PutUint64(k[len(eventPrefix):], seq)
	return k
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	end[len(end)-1]++
	return end
}

// feed wakes watchers after each commit by closing the channel they wait on.
type feed struct {
	mut *sync.Mutex
	ch  chan struct{}
}

func newFeed() *feed {
	return &feed{mut: &sync.Mutex{}, ch: make(chan struct{})}
}

func (f *feed) wait() <-chan struct{} {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.ch
}

func (f *feed) notify() {
	f.mut.Lock()
	close(f.ch)
	f.ch = make(chan struct{})
	f.mut.Unlock()
}
