/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Dialer opens client connections to registry nodes. Calls made on its
// connections are encoded with the JSON codec.
type Dialer struct {
	creds   credentials.TransportCredentials
	timeout time.Duration
	extra   []grpc.DialOption
}

// DialerOption customizes a Dialer.
type DialerOption func(*Dialer)

// WithDialTimeout bounds how long Dial waits for the connection to become
// ready.
func WithDialTimeout(timeout time.Duration) DialerOption {
	return func(d *Dialer) {
		d.timeout = timeout
	}
}

// WithDialOptions appends grpc dial options after the defaults.
func WithDialOptions(opts ...grpc.DialOption) DialerOption {
	return func(d *Dialer) {
		d.extra = append(d.extra, opts...)
	}
}

// NewDialer returns a Dialer securing its connections with opts. Connections
// are plaintext when opts is nil or leaves TLS off.
func NewDialer(opts *TLSOptions, options ...DialerOption) (*Dialer, error) {
	d := &Dialer{creds: insecure.NewCredentials(), timeout: DefaultConnectionTimeout}
	tlsConfig, err := clientTLSConfig(opts)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		d.creds = credentials.NewTLS(tlsConfig)
	}
	for _, o := range options {
		o(d)
	}
	return d, nil
}

// Secure reports whether the Dialer uses TLS.
func (d *Dialer) Secure() bool {
	return d.creds.Info().SecurityProtocol == "tls"
}

// Dial connects to address. It blocks until the connection is ready, ctx is
// done or the dial timeout passes.
func (d *Dialer) Dial(ctx context.Context, address string) (*grpc.ClientConn, error) {
	if address == "" {
		return nil, errors.New("missing address parameter")
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(d.creds),
		// keepalive pings must not come faster than the server enforces
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                ServerMinInterval,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithBlock(),
		grpc.FailOnNonTempDialError(true),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(MaxRecvMsgSize),
			grpc.MaxCallSendMsgSize(MaxSendMsgSize),
			grpc.CallContentSubtype(CodecName),
		),
	}
	opts = append(opts, d.extra...)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	conn, err := grpc.DialContext(ctx, address, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed dialing registry node [%s]", address)
	}
	return conn, nil
}

func clientTLSConfig(opts *TLSOptions) (*tls.Config, error) {
	if opts == nil || !opts.UseTLS {
		return nil, nil
	}
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if len(opts.ServerRootCAs) > 0 {
		pool, err := certPool(opts.ServerRootCAs)
		if err != nil {
			return nil, errors.WithMessage(err, "invalid server root certificates")
		}
		tlsConfig.RootCAs = pool
	}
	switch {
	case opts.Certificate != nil && opts.Key != nil:
		cert, err := tls.X509KeyPair(opts.Certificate, opts.Key)
		if err != nil {
			return nil, errors.Wrap(err, "failed loading client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case opts.RequireClientCert:
		return nil, errors.New("both Key and Certificate are required when using mutual TLS")
	}
	return tlsConfig, nil
}
