/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/typeddata"
)

// Actions a Command can authorize.
const (
	ActionIssue      = "issue"
	ActionRevoke     = "revoke"
	ActionGrant      = "grant"
	ActionRevokeRole = "revokeRole"
)

const commandType = "Command"

var commandEncoder *typeddata.Encoder

func init() {
	var err error
	commandEncoder, err = typeddata.NewEncoder(typeddata.Types{
		commandType: {
			{Name: "action", Type: "string"},
			{Name: "docHash", Type: "bytes32"},
			{Name: "role", Type: "string"},
			{Name: "subject", Type: "address"},
			{Name: "salt", Type: "bytes32"},
			{Name: "deadline", Type: "uint256"},
		},
	})
	if err != nil {
		panic(err)
	}
}

// Command is a direct role request. The identity that signs it under the
// ledger domain is the caller.
type Command struct {
	Action  string         `json:"action"`
	DocHash crypto.Hash    `json:"docHash"`
	Role    string         `json:"role"`
	Subject crypto.Address `json:"subject"`
	// Salt makes otherwise identical commands distinct.
	Salt crypto.Hash `json:"salt"`
	// Deadline is the unix time after which the command is refused.
	Deadline uint64 `json:"deadline"`
}

// NewCommand returns a command with a random salt that expires ttl after now.
func NewCommand(action string, now time.Time, ttl time.Duration) (Command, error) {
	c := Command{Action: action, Deadline: uint64(now.Add(ttl).Unix())}
	if _, err := rand.Read(c.Salt[:]); err != nil {
		return c, errors.Wrap(err, "failed generating command salt")
	}
	return c, nil
}

func (c Command) message() typeddata.Message {
	return typeddata.Message{
		"action":   c.Action,
		"docHash":  c.DocHash,
		"role":     c.Role,
		"subject":  c.Subject,
		"salt":     c.Salt,
		"deadline": new(big.Int).SetUint64(c.Deadline),
	}
}

// Digest returns the typed data digest of c under domain.
func (c Command) Digest(domain typeddata.Domain) (crypto.Hash, error) {
	return commandEncoder.Digest(domain, commandType, c.message())
}

// Sign signs c under domain.
func (c Command) Sign(signer api.Signer, domain typeddata.Domain) (SignedCommand, error) {
	digest, err := c.Digest(domain)
	if err != nil {
		return SignedCommand{}, err
	}
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return SignedCommand{}, err
	}
	return SignedCommand{Command: c, Signature: sig}, nil
}

// SignedCommand is a Command with the caller's signature.
type SignedCommand struct {
	Command   Command          `json:"command"`
	Signature crypto.Signature `json:"signature"`
}

var noncePrefix = []byte("n/")

// replayGuard admits each signed command at most once before its deadline.
// Used digests are kept in the database until they expire.
type replayGuard struct {
	db    api.Database
	clock clock.Clock
	mut   *sync.Mutex
}

func newReplayGuard(db api.Database, clk clock.Clock) *replayGuard {
	return &replayGuard{db: db, clock: clk, mut: &sync.Mutex{}}
}

// authenticate returns the signer of sc after checking its action, deadline
// and freshness. The command is consumed even if the operation it
// authorizes later fails.
func (g *replayGuard) authenticate(domain typeddata.Domain, sc SignedCommand, action string) (crypto.Address, error) {
	cmd := sc.Command
	if cmd.Action != action {
		return crypto.Address{}, errors.Wrapf(ledger.ErrEncoding, "command authorizes %q, not %q", cmd.Action, action)
	}
	now := g.clock.Now().Unix()
	if cmd.Deadline < uint64(now) {
		return crypto.Address{}, errors.Wrapf(ledger.ErrUnauthorized, "command expired at %d", cmd.Deadline)
	}
	digest, err := cmd.Digest(domain)
	if err != nil {
		return crypto.Address{}, err
	}
	caller, err := ledger.Recover(digest, sc.Signature)
	if err != nil {
		return crypto.Address{}, err
	}

	key := append(append([]byte{}, noncePrefix...), digest[:]...)
	g.mut.Lock()
	defer g.mut.Unlock()
	used, err := g.db.Has(key)
	if err != nil {
		return caller, err
	}
	if used {
		return caller, errors.Wrapf(ledger.ErrUnauthorized, "command %s from %s already used", digest, caller)
	}
	var deadline [8]byte
	binary.BigEndian.PutUint64(deadline[:], cmd.Deadline)
	b := g.db.NewBatch()
	b.Put(key, deadline[:])
	if err := g.db.Write(b); err != nil {
		return caller, err
	}
	return caller, nil
}

// prune forgets expired commands, which can no longer be replayed anyway.
func (g *replayGuard) prune() (int, error) {
	now := uint64(g.clock.Now().Unix())
	g.mut.Lock()
	defer g.mut.Unlock()

	b := g.db.NewBatch()
	end := append([]byte{}, noncePrefix...)
	end[len(end)-1]++
	err := g.db.Iterate(noncePrefix, end, func(key, value []byte) bool {
		if len(value) == 8 && binary.BigEndian.Uint64(value) < now {
			b.Delete(append([]byte{}, key...))
		}
		return true
	})
	if err != nil || b.Len() == 0 {
		return 0, err
	}
	return b.Len(), g.db.Write(b)
}
