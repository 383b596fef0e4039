/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

// EventKind names the transition an Event records.
type EventKind string

const (
	Issued      EventKind = "Issued"
	Revoked     EventKind = "Revoked"
	RoleGranted EventKind = "RoleGranted"
	RoleRevoked EventKind = "RoleRevoked"
)

// Event is one entry of the append-only log. Sequence numbers start at 1
// and grow by one per committed transition.
type Event struct {
	Sequence  uint64         `json:"sequence"`
	Kind      EventKind      `json:"kind"`
	DocHash   crypto.Hash    `json:"docHash"`
	Actor     crypto.Address `json:"actor"`
	Timestamp int64          `json:"timestamp"`
	// StorageRef is set on Issued events.
	StorageRef string `json:"storageRef,omitempty"`
	// Role and Subject are set on role events.
	Role    Role           `json:"role,omitempty"`
	Subject crypto.Address `json:"subject"`
}

// Head returns the sequence number of the last committed event, or 0 for an
// empty log.
func (l *Ledger) Head() uint64 {
	return l.head.Load()
}

// Events returns the committed events with sequence numbers in [from, to].
// A to of 0 means the current head.
func (l *Ledger) Events(from, to uint64) ([]*Event, error) {
	var events []*Event
	err := l.Replay(from, func(ev *Event) bool {
		if to != 0 && ev.Sequence > to {
			return false
		}
		events = append(events, ev)
		return true
	})
	return events, err
}

// Replay calls fn for every committed event from sequence from onwards, in
// order, until fn returns false.
func (l *Ledger) Replay(from uint64, fn func(*Event) bool) error {
	if from == 0 {
		from = 1
	}
	head := l.Head()
	if from > head {
		return nil
	}

	var decodeErr error
	err := l.db.Iterate(eventKey(from), eventKey(head+1), func(_, value []byte) bool {
		ev := new(Event)
		if decodeErr = json.Unmarshal(value, ev); decodeErr != nil {
			return false
		}
		return fn(ev)
	})
	if err != nil {
		return err
	}
	return errors.Wrap(decodeErr, "corrupt event")
}

// Watch streams every event from sequence from onwards, first from the
// stored log and then as transitions commit, without gaps. The channel is
// closed when ctx is done or the ledger is closed.
func (l *Ledger) Watch(ctx context.Context, from uint64) <-chan *Event {
	if from == 0 {
		from = 1
	}
	out := make(chan *Event, 64)
	go func() {
		defer close(out)
		next := from
		for {
			wake := l.feed.wait()
			head := l.Head()
			for next <= head {
				events, err := l.Events(next, head)
				if err != nil {
					l.logger.Error("watch failed reading events", "from", next, "error", err)
					return
				}
				for _, ev := range events {
					select {
					case out <- ev:
						next = ev.Sequence + 1
					case <-l.closed:
						return
					case <-ctx.Done():
						return
					}
				}
				if len(events) == 0 {
					break
				}
			}
			select {
			case <-wake:
			case <-l.closed:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
