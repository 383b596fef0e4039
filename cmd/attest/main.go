/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/rpc"
	"github.com/zhigui-projects/go-attest/transport"
	"gopkg.in/yaml.v3"
)

type options struct {
	server  string
	keyFile string
	caFiles []string
	timeout time.Duration
}

func newMainCmd() *cobra.Command {
	opts := &options{}
	mainCmd := &cobra.Command{
		Use:           "attest",
		Short:         "Issue, revoke and verify credentials on an attestation node.",
		SilenceErrors: true,
	}
	flags := mainCmd.PersistentFlags()
	flags.StringVarP(&opts.server, "server", "s", "127.0.0.1:7050", "The attestation node to connect to.")
	flags.StringVarP(&opts.keyFile, "key", "k", "", "File holding the hex encoded signing key.")
	flags.StringSliceVar(&opts.caFiles, "tls-ca", nil, "Root certificates of the node; enables TLS.")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout.")

	mainCmd.AddCommand(
		keygenCmd(),
		addressCmd(opts),
		signCmd(opts),
		issueCmd(opts),
		issueSignedCmd(opts),
		revokeCmd(opts),
		grantCmd(opts, "grant", "Grant a role to an identity."),
		grantCmd(opts, "revoke-role", "Remove a role from an identity."),
		verifyCmd(opts),
		eventsCmd(opts),
		watchCmd(opts),
	)
	return mainCmd
}

func (o *options) signer() (*crypto.PrivateKey, error) {
	if o.keyFile == "" {
		return nil, errors.New("--key is required")
	}
	return crypto.LoadPrivateKey(o.keyFile)
}

func (o *options) tls() (*transport.TLSOptions, error) {
	if len(o.caFiles) == 0 {
		return nil, nil
	}
	return transport.TLSFiles{Enabled: true, ServerRootCAs: o.caFiles}.Load()
}

// client connects to the node, signing with the key file when withKey.
func (o *options) client(withKey bool) (*rpc.Client, error) {
	tlsOpts, err := o.tls()
	if err != nil {
		return nil, err
	}
	ctx, cancel := o.context()
	defer cancel()
	conn, err := rpc.DialContext(ctx, o.server, tlsOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed connecting to %s", o.server)
	}
	if !withKey {
		return rpc.NewClient(conn, nil), nil
	}
	key, err := o.signer()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return rpc.NewClient(conn, key), nil
}

func (o *options) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.timeout)
}

func parseHash(s string) (crypto.Hash, error) {
	h, err := crypto.HexToHash(s)
	if err != nil {
		return h, errors.WithMessage(err, "invalid document hash")
	}
	return h, nil
}

// docHash returns the hash given as the only argument, or the keccak256 of
// file when it is set.
func docHash(args []string, file string) (crypto.Hash, error) {
	if file != "" {
		if len(args) != 0 {
			return crypto.Hash{}, errors.New("give either --file or a document hash")
		}
		raw, err := ioutil.ReadFile(file)
		if err != nil {
			return crypto.Hash{}, errors.Wrapf(err, "error reading document [%s]", file)
		}
		return crypto.Keccak256Hash(raw), nil
	}
	if len(args) != 1 {
		return crypto.Hash{}, errors.New("expected one document hash")
	}
	return parseHash(args[0])
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonBytes(v interface{}) ([]byte, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed encoding json")
	}
	return append(raw, '\n'), nil
}

func readYAMLOrJSON(path string, v interface{}) error {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "error reading [%s]", path)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return errors.Wrapf(err, "error parsing [%s]", path)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newMainCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
