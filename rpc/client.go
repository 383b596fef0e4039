/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"context"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/transport"
	"github.com/zhigui-projects/go-attest/typeddata"
	"google.golang.org/grpc"
)

// DefaultCommandTTL is how long a signed command stays valid.
const DefaultCommandTTL = 5 * time.Minute

// Client calls a registry node. Role restricted calls are signed with the
// client's signer.
type Client struct {
	conn   *grpc.ClientConn
	signer api.Signer
	clock  clock.Clock
	ttl    time.Duration

	mut    *sync.Mutex
	domain *typeddata.Domain
}

// Dial connects to the node at address.
func Dial(address string, opts *transport.TLSOptions) (*grpc.ClientConn, error) {
	return DialContext(context.Background(), address, opts)
}

// DialContext is Dial giving up once ctx is done.
func DialContext(ctx context.Context, address string, opts *transport.TLSOptions) (*grpc.ClientConn, error) {
	d, err := transport.NewDialer(opts)
	if err != nil {
		return nil, err
	}
	return d.Dial(ctx, address)
}

// NewClient returns a client over conn. signer may be nil for read only use.
func NewClient(conn *grpc.ClientConn, signer api.Signer) *Client {
	return &Client{
		conn:   conn,
		signer: signer,
		clock:  clock.NewClock(),
		ttl:    DefaultCommandTTL,
		mut:    &sync.Mutex{},
	}
}

// WithClock sets the clock used for command deadlines.
func (c *Client) WithClock(clk clock.Clock) *Client {
	c.clock = clk
	return c
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	err := c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(transport.CodecName))
	return fromStatus(err)
}

// Domain returns the node's typed data domain. It is fetched once.
func (c *Client) Domain(ctx context.Context) (typeddata.Domain, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.domain != nil {
		return *c.domain, nil
	}
	resp := new(DomainResponse)
	if err := c.invoke(ctx, "Domain", &DomainRequest{}, resp); err != nil {
		return typeddata.Domain{}, err
	}
	c.domain = &resp.Domain
	return resp.Domain, nil
}

func (c *Client) command(ctx context.Context, method string, cmd Command) (*CommandResponse, error) {
	if c.signer == nil {
		return nil, errors.New("client has no signing key")
	}
	domain, err := c.Domain(ctx)
	if err != nil {
		return nil, err
	}
	signed, err := cmd.Sign(c.signer, domain)
	if err != nil {
		return nil, err
	}
	resp := new(CommandResponse)
	if err := c.invoke(ctx, method, &CommandRequest{SignedCommand: signed}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) newCommand(action string) (Command, error) {
	return NewCommand(action, c.clock.Now(), c.ttl)
}

// Issue issues docHash with the client's identity.
func (c *Client) Issue(ctx context.Context, docHash crypto.Hash) (*CommandResponse, error) {
	cmd, err := c.newCommand(ActionIssue)
	if err != nil {
		return nil, err
	}
	cmd.DocHash = docHash
	return c.command(ctx, "Issue", cmd)
}

// Revoke revokes docHash with the client's identity.
func (c *Client) Revoke(ctx context.Context, docHash crypto.Hash) (*CommandResponse, error) {
	cmd, err := c.newCommand(ActionRevoke)
	if err != nil {
		return nil, err
	}
	cmd.DocHash = docHash
	return c.command(ctx, "Revoke", cmd)
}

// Grant gives role to id.
func (c *Client) Grant(ctx context.Context, role ledger.Role, id crypto.Address) (*CommandResponse, error) {
	cmd, err := c.newCommand(ActionGrant)
	if err != nil {
		return nil, err
	}
	cmd.Role, cmd.Subject = string(role), id
	return c.command(ctx, "Grant", cmd)
}

// RevokeRole removes role from id.
func (c *Client) RevokeRole(ctx context.Context, role ledger.Role, id crypto.Address) (*CommandResponse, error) {
	cmd, err := c.newCommand(ActionRevokeRole)
	if err != nil {
		return nil, err
	}
	cmd.Role, cmd.Subject = string(role), id
	return c.command(ctx, "RevokeRole", cmd)
}

// IssueWithSignature submits a payload signed off-chain.
func (c *Client) IssueWithSignature(ctx context.Context, p ledger.Payload, sig crypto.Signature) (*IssueSignedResponse, error) {
	return c.IssueMessage(ctx, p.Message(), sig)
}

// IssueMessage submits a loosely typed payload message and its signature.
func (c *Client) IssueMessage(ctx context.Context, msg typeddata.Message, sig crypto.Signature) (*IssueSignedResponse, error) {
	resp := new(IssueSignedResponse)
	if err := c.invoke(ctx, "IssueWithSignature", &IssueSignedRequest{Payload: msg, Signature: sig}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Verify(ctx context.Context, docHash crypto.Hash) (ledger.Status, error) {
	resp := new(VerifyResponse)
	if err := c.invoke(ctx, "Verify", &VerifyRequest{DocHash: docHash}, resp); err != nil {
		return ledger.Status{}, err
	}
	return resp.Status, nil
}

func (c *Client) HasRole(ctx context.Context, role ledger.Role, id crypto.Address) (bool, error) {
	resp := new(HasRoleResponse)
	if err := c.invoke(ctx, "HasRole", &HasRoleRequest{Role: string(role), Identity: id}, resp); err != nil {
		return false, err
	}
	return resp.HasRole, nil
}

// Events returns one page of events in [from, to]; follow up from the last
// returned sequence while it is below the returned head.
func (c *Client) Events(ctx context.Context, from, to uint64) (*EventsResponse, error) {
	resp := new(EventsResponse)
	if err := c.invoke(ctx, "Events", &EventsRequest{From: from, To: to}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// EventStream receives watched events.
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (s *EventStream) Recv() (*ledger.Event, error) {
	ev := new(ledger.Event)
	if err := s.stream.RecvMsg(ev); err != nil {
		return nil, fromStatus(err)
	}
	return ev, nil
}

// Watch streams events from sequence from onwards until ctx is done.
func (c *Client) Watch(ctx context.Context, from uint64) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("Watch"), grpc.CallContentSubtype(transport.CodecName))
	if err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(&WatchRequest{From: from}); err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
