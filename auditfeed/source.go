/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package auditfeed

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/rpc"
)

// Source yields committed ledger events.
type Source interface {
	// Events returns every committed event from sequence from onwards.
	Events(ctx context.Context, from uint64) ([]*ledger.Event, error)
	// Watch calls fn for each event from sequence from onwards, in order,
	// as it commits. It returns when ctx is done, the stream ends or fn
	// fails.
	Watch(ctx context.Context, from uint64, fn func(*ledger.Event) error) error
}

// ErrStreamClosed is returned by Watch when the source stopped without ctx
// being done.
var ErrStreamClosed = errors.New("event stream closed")

// FromLedger reads a ledger in the same process.
func FromLedger(l *ledger.Ledger) Source {
	return &ledgerSource{l: l}
}

type ledgerSource struct {
	l *ledger.Ledger
}

func (s *ledgerSource) Events(_ context.Context, from uint64) ([]*ledger.Event, error) {
	return s.l.Events(from, 0)
}

func (s *ledgerSource) Watch(ctx context.Context, from uint64, fn func(*ledger.Event) error) error {
	for ev := range s.l.Watch(ctx, from) {
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrStreamClosed
}

// FromClient reads a remote node.
func FromClient(c *rpc.Client) Source {
	return &clientSource{c: c}
}

type clientSource struct {
	c *rpc.Client
}

func (s *clientSource) Events(ctx context.Context, from uint64) ([]*ledger.Event, error) {
	var events []*ledger.Event
	for {
		resp, err := s.c.Events(ctx, from, 0)
		if err != nil {
			return nil, err
		}
		if len(resp.Events) == 0 {
			return events, nil
		}
		events = append(events, resp.Events...)
		from = resp.Events[len(resp.Events)-1].Sequence + 1
		if from > resp.Head {
			return events, nil
		}
	}
}

func (s *clientSource) Watch(ctx context.Context, from uint64, fn func(*ledger.Event) error) error {
	stream, err := s.c.Watch(ctx, from)
	if err != nil {
		return err
	}
	for {
		ev, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == io.EOF {
				return ErrStreamClosed
			}
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
