/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"context"
	"math"

	"code.cloudfoundry.org/clock"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/common/log"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/transport"
	"github.com/zhigui-projects/go-attest/typeddata"
)

// MaxEvents bounds the events returned by one Events call.
const MaxEvents = 1000

// Registry is the ledger surface served over gRPC.
type Registry interface {
	Domain() typeddata.Domain
	Head() uint64
	Issue(caller crypto.Address, docHash crypto.Hash) error
	IssueWithSignature(p ledger.Payload, sig crypto.Signature) (crypto.Address, error)
	Revoke(caller crypto.Address, docHash crypto.Hash) error
	Grant(caller crypto.Address, role ledger.Role, id crypto.Address) error
	RevokeRole(caller crypto.Address, role ledger.Role, id crypto.Address) error
	Verify(docHash crypto.Hash) ledger.Status
	HasRole(role ledger.Role, id crypto.Address) bool
	Events(from, to uint64) ([]*ledger.Event, error)
	Watch(ctx context.Context, from uint64) <-chan *ledger.Event
}

// Server serves a Registry. Role restricted calls are authenticated by a
// signed Command.
type Server struct {
	registry Registry
	guard    *replayGuard
	logger   api.Logger
}

// NewServer returns a Server for reg. Used command digests are recorded in
// db under their own key prefix.
func NewServer(reg Registry, db api.Database, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Server{
		registry: reg,
		guard:    newReplayGuard(db, clk),
		logger:   log.GetLogger("module", "rpc"),
	}
}

// PruneCommands forgets used commands whose deadline has passed.
func (s *Server) PruneCommands() error {
	n, err := s.guard.prune()
	if err != nil {
		return err
	}
	s.logger.Debug("pruned expired commands", "count", n)
	return nil
}

func (s *Server) authenticate(ctx context.Context, req *CommandRequest, action string) (crypto.Address, error) {
	caller, err := s.guard.authenticate(s.registry.Domain(), req.SignedCommand, action)
	if err != nil {
		s.logger.Warning("rejected command", "action", action, "remote", transport.RemoteAddress(ctx), "error", err)
	}
	return caller, err
}

func (s *Server) Issue(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	caller, err := s.authenticate(ctx, req, ActionIssue)
	if err == nil {
		err = s.registry.Issue(caller, req.Command.DocHash)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &CommandResponse{Caller: caller, Head: s.registry.Head()}, nil
}

func (s *Server) IssueWithSignature(ctx context.Context, req *IssueSignedRequest) (*IssueSignedResponse, error) {
	p, err := ledger.PayloadFromMessage(req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	issuer, err := s.registry.IssueWithSignature(p, req.Signature)
	if err != nil {
		return nil, toStatus(err)
	}
	return &IssueSignedResponse{Issuer: issuer, Head: s.registry.Head()}, nil
}

func (s *Server) Revoke(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	caller, err := s.authenticate(ctx, req, ActionRevoke)
	if err == nil {
		err = s.registry.Revoke(caller, req.Command.DocHash)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &CommandResponse{Caller: caller, Head: s.registry.Head()}, nil
}

func (s *Server) Grant(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	return s.changeRole(ctx, req, ActionGrant, s.registry.Grant)
}

func (s *Server) RevokeRole(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	return s.changeRole(ctx, req, ActionRevokeRole, s.registry.RevokeRole)
}

func (s *Server) changeRole(ctx context.Context, req *CommandRequest, action string,
	apply func(crypto.Address, ledger.Role, crypto.Address) error) (*CommandResponse, error) {
	role, err := ledger.ParseRole(req.Command.Role)
	if err != nil {
		return nil, toStatus(err)
	}
	caller, err := s.authenticate(ctx, req, action)
	if err == nil {
		err = apply(caller, role, req.Command.Subject)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &CommandResponse{Caller: caller, Head: s.registry.Head()}, nil
}

func (s *Server) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	return &VerifyResponse{Status: s.registry.Verify(req.DocHash)}, nil
}

func (s *Server) HasRole(ctx context.Context, req *HasRoleRequest) (*HasRoleResponse, error) {
	role, err := ledger.ParseRole(req.Role)
	if err != nil {
		return nil, toStatus(err)
	}
	return &HasRoleResponse{HasRole: s.registry.HasRole(role, req.Identity)}, nil
}

func (s *Server) Events(ctx context.Context, req *EventsRequest) (*EventsResponse, error) {
	from, to, ok := pageRange(req.From, req.To)
	if !ok {
		return &EventsResponse{Head: s.registry.Head()}, nil
	}
	events, err := s.registry.Events(from, to)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EventsResponse{Events: events, Head: s.registry.Head()}, nil
}

// pageRange bounds an events query to at most MaxEvents sequence numbers.
// It reports false for an empty range.
func pageRange(from, to uint64) (uint64, uint64, bool) {
	if from == 0 {
		from = 1
	}
	if to != 0 && to < from {
		return 0, 0, false
	}
	if to == 0 || to-from >= MaxEvents {
		to = from + MaxEvents - 1
		if to < from {
			to = math.MaxUint64
		}
	}
	return from, to, true
}

func (s *Server) Domain(ctx context.Context, req *DomainRequest) (*DomainResponse, error) {
	return &DomainResponse{Domain: s.registry.Domain()}, nil
}

func (s *Server) Watch(req *WatchRequest, stream WatchServer) error {
	ctx := stream.Context()
	remote := transport.RemoteAddress(ctx)
	s.logger.Debug("starting event watch", "remote", remote, "from", req.From)

	for ev := range s.registry.Watch(ctx, req.From) {
		if err := stream.Send(ev); err != nil {
			s.logger.Error("event watch disconnected", "remote", remote, "sequence", ev.Sequence, "error", err)
			return err
		}
	}
	s.logger.Debug("event watch finished", "remote", remote)
	return toStatus(ctx.Err())
}
