/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
)

type GrpcServer struct {
	// Listen address for the server specified as hostname:port
	address string
	// Listener for handling network requests
	listener net.Listener
	// GRPC server
	server *grpc.Server
}

// NewGrpcServer creates a new implementation of a NewGrpcServer given a
// listen address. Requests are decoded with the codec named by their
// content subtype; the JSON codec is always registered.
func NewGrpcServer(address string, opts *TLSOptions, extra ...grpc.ServerOption) (*GrpcServer, error) {
	if address == "" {
		return nil, errors.New("missing address parameter")
	}
	tlsConfig, err := parseTLSOptionsForServer(opts)
	if err != nil {
		return nil, err
	}
	//create our listener
	listen, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	var serverOpts []grpc.ServerOption

	//set up server options for keepalive and TLS
	if tlsConfig != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	serverKeepAliveParameters := keepalive.ServerParameters{
		Time:    1 * time.Minute,
		Timeout: 20 * time.Second,
	}
	serverOpts = append(serverOpts, grpc.KeepaliveParams(serverKeepAliveParameters))
	// set max send and recv msg sizes
	serverOpts = append(serverOpts, grpc.MaxSendMsgSize(MaxSendMsgSize))
	serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(MaxRecvMsgSize))
	// set connection timeout
	serverOpts = append(serverOpts, grpc.ConnectionTimeout(DefaultConnectionTimeout))
	//set enforcement policy
	kep := keepalive.EnforcementPolicy{
		MinTime: ServerMinInterval,
		// allow keepalive w/o rpc
		PermitWithoutStream: true,
	}
	serverOpts = append(serverOpts, grpc.KeepaliveEnforcementPolicy(kep))
	serverOpts = append(serverOpts, extra...)

	server := grpc.NewServer(serverOpts...)

	return &GrpcServer{address: listen.Addr().String(), listener: listen, server: server}, nil
}

// Address returns the listen address for this GRPCServer instance
func (s *GrpcServer) Address() string {
	return s.address
}

// Server returns the grpc.Server for the GRPCServer instance
func (s *GrpcServer) Server() *grpc.Server {
	return s.server
}

// Start starts the underlying grpc.Server
func (s *GrpcServer) Start() error {
	if s.listener == nil {
		return errors.New("nil listener")
	}

	if s.server == nil {
		return errors.New("nil server")
	}

	return s.server.Serve(s.listener)
}

// Stop stops the underlying grpc.Server
func (s *GrpcServer) Stop() {
	if s.server != nil {
		s.server.Stop()
	}
	s.closeListener()
}

// GracefulStop stops accepting new connections and waits for pending
// requests and streams to finish.
func (s *GrpcServer) GracefulStop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
	s.closeListener()
}

// closeListener releases the listener when Start was never called.
func (s *GrpcServer) closeListener() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// RemoteAddress returns the address of the peer that sent the request
// carried by ctx.
func RemoteAddress(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}

func parseTLSOptionsForServer(opts *TLSOptions) (*tls.Config, error) {
	if opts == nil || !opts.UseTLS {
		return nil, nil
	}
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
		},
		SessionTicketsDisabled: true,
	}
	if opts.Key == nil || opts.Certificate == nil {
		return nil, errors.New("both Key and Certificate are required for a TLS server")
	}
	cert, err := tls.X509KeyPair(opts.Certificate, opts.Key)
	if err != nil {
		return nil, errors.Wrap(err, "failed loading server certificate")
	}
	tlsConfig.Certificates = []tls.Certificate{cert}

	tlsConfig.ClientAuth = tls.RequestClientCert
	if opts.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		if len(opts.ClientRootCAs) > 0 {
			pool, err := certPool(opts.ClientRootCAs)
			if err != nil {
				return nil, errors.WithMessage(err, "invalid client root certificates")
			}
			tlsConfig.ClientCAs = pool
		}
	}

	return tlsConfig, nil
}
