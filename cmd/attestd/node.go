/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/auditfeed"
	"github.com/zhigui-projects/go-attest/common/db/leveldb"
	"github.com/zhigui-projects/go-attest/common/log"
	"github.com/zhigui-projects/go-attest/config"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/rpc"
	"github.com/zhigui-projects/go-attest/transport"
)

const stopTimeout = 10 * time.Second

// Node wires the ledger, its gRPC service and the optional audit feed.
type Node struct {
	cfg    *config.Config
	clock  clock.Clock
	logger api.Logger

	ledger *ledger.Ledger
	server *rpc.Server
	grpc   *transport.GrpcServer
	feed   *auditfeed.Feed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode opens the ledger and binds the listen address. Nothing is served
// until Serve is called.
func NewNode(cfg *config.Config) (*Node, error) {
	n := &Node{cfg: cfg, clock: clock.NewClock(), logger: log.GetLogger("module", "attestd")}

	db, err := leveldb.Open(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return nil, err
	}
	n.ledger, err = ledger.New(ledger.Config{
		DB:     db,
		Domain: cfg.Domain,
		Admin:  cfg.Admin,
		Clock:  n.clock,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	tlsOpts, err := cfg.TLS.Load()
	if err != nil {
		n.ledger.Close()
		return nil, err
	}
	n.grpc, err = transport.NewGrpcServer(cfg.Listen, tlsOpts)
	if err != nil {
		n.ledger.Close()
		return nil, err
	}
	n.server = rpc.NewServer(n.ledger, db, n.clock)
	rpc.RegisterRegistryServer(n.grpc.Server(), n.server)

	if cfg.AuditFeed != "" {
		if n.feed, err = auditfeed.Open(cfg.AuditFeed); err != nil {
			n.grpc.Stop()
			n.ledger.Close()
			return nil, err
		}
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	return n, nil
}

// Address returns the bound listen address.
func (n *Node) Address() string {
	return n.grpc.Address()
}

// Serve runs the background workers and blocks serving gRPC until Stop.
func (n *Node) Serve() error {
	ctx := n.ctx
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.pruneLoop(ctx)
	}()
	if n.feed != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.feed.Follow(ctx, auditfeed.FromLedger(n.ledger)); err != nil && ctx.Err() == nil {
				n.logger.Error("Audit feed stopped", "error", err)
			}
		}()
	}

	d := n.ledger.Domain()
	n.logger.Info("Attestation node started, beginning to serve requests",
		"address", n.Address(), "domain", d.Name, "chainId", d.ChainID, "head", n.ledger.Head())
	return n.grpc.Start()
}

func (n *Node) pruneLoop(ctx context.Context) {
	ticker := n.clock.NewTicker(n.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			if err := n.server.PruneCommands(); err != nil {
				n.logger.Warning("Failed pruning used commands", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop drains in-flight requests, stops the workers and closes the stores.
func (n *Node) Stop() error {
	n.cancel()

	done := make(chan struct{})
	go func() {
		n.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		n.logger.Warning("Graceful stop timed out, closing open streams")
		n.grpc.Stop()
	}

	n.wg.Wait()
	var err error
	if n.feed != nil {
		err = n.feed.Close()
	}
	if lerr := n.ledger.Close(); lerr != nil && err == nil {
		err = errors.WithMessage(lerr, "failed closing ledger")
	}
	n.logger.Info("Attestation node stopped")
	return err
}
