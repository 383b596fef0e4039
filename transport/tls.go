/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"crypto/x509"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
)

var (
	// Max send and receive bytes for grpc clients and servers
	MaxRecvMsgSize           = 100 * 1024 * 1024 // 100 MiB
	MaxSendMsgSize           = 100 * 1024 * 1024
	DefaultConnectionTimeout = time.Second * 3
	ServerMinInterval        = time.Duration(1) * time.Minute
)

// TLSOptions holds the PEM material securing a GrpcServer or Dialer.
type TLSOptions struct {
	// certificate and key presented to the peer
	Certificate []byte
	Key         []byte
	// authorities clients use to verify servers
	ServerRootCAs [][]byte
	// authorities servers use to verify clients
	ClientRootCAs [][]byte
	UseTLS        bool
	// servers demand client certificates; clients refuse to dial without one
	RequireClientCert bool
}

// TLSFiles names the PEM files TLSOptions are loaded from.
type TLSFiles struct {
	Enabled           bool     `yaml:"enabled"`
	CertFile          string   `yaml:"certFile"`
	KeyFile           string   `yaml:"keyFile"`
	ServerRootCAs     []string `yaml:"serverRootCAs"`
	ClientRootCAs     []string `yaml:"clientRootCAs"`
	RequireClientCert bool     `yaml:"requireClientCert"`
}

// Load reads the files into TLSOptions. It returns nil when TLS is disabled.
func (f TLSFiles) Load() (*TLSOptions, error) {
	if !f.Enabled {
		return nil, nil
	}
	opts := &TLSOptions{UseTLS: true, RequireClientCert: f.RequireClientCert}
	var err error
	if f.CertFile != "" {
		if opts.Certificate, err = ioutil.ReadFile(f.CertFile); err != nil {
			return nil, errors.Wrapf(err, "error reading certificate [%s]", f.CertFile)
		}
	}
	if f.KeyFile != "" {
		if opts.Key, err = ioutil.ReadFile(f.KeyFile); err != nil {
			return nil, errors.Wrapf(err, "error reading key [%s]", f.KeyFile)
		}
	}
	if opts.ServerRootCAs, err = readAll(f.ServerRootCAs); err != nil {
		return nil, err
	}
	if opts.ClientRootCAs, err = readAll(f.ClientRootCAs); err != nil {
		return nil, err
	}
	return opts, nil
}

func readAll(files []string) ([][]byte, error) {
	var out [][]byte
	for _, name := range files {
		b, err := ioutil.ReadFile(name)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading root certificate [%s]", name)
		}
		out = append(out, b)
	}
	return out, nil
}

func certPool(pems [][]byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for i, b := range pems {
		if !pool.AppendCertsFromPEM(b) {
			return nil, errors.Errorf("no certificate found in PEM block %d", i)
		}
	}
	return pool, nil
}
