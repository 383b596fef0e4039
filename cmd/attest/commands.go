/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/typeddata"
)

// SignedCredential is the file written by sign and read by issue-signed.
type SignedCredential struct {
	Domain    typeddata.Domain `json:"domain" yaml:"domain"`
	Payload   ledger.Payload   `json:"payload" yaml:"payload"`
	Signature crypto.Signature `json:"signature" yaml:"signature"`
	Signer    crypto.Address   `json:"signer" yaml:"signer"`
}

func keygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), key.Hex())
			} else if err := ioutil.WriteFile(out, []byte(key.Hex()+"\n"), 0600); err != nil {
				return errors.Wrapf(err, "error writing key file [%s]", out)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "address:", key.Address().Hex())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the key to this file instead of stdout.")
	return cmd
}

func addressCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the address of the signing key.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := opts.signer()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.Address().Hex())
			return nil
		},
	}
}

func signCmd(opts *options) *cobra.Command {
	var (
		file, domainFile, out string
		p                     ledger.Payload
		issueDate             int64
	)
	cmd := &cobra.Command{
		Use:   "sign [docHash]",
		Short: "Sign a credential payload for later submission by anyone.",
		Long: `Sign a credential payload with the issuer key. The domain is read from
--domain when given, so signing needs no connection to the node.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if p.DocHash, err = docHash(args, file); err != nil {
				return err
			}
			if issueDate < 0 {
				return errors.Errorf("invalid issue date %d", issueDate)
			}
			p.IssueDate = uint64(issueDate)
			if issueDate == 0 {
				p.IssueDate = uint64(time.Now().Unix())
			}
			key, err := opts.signer()
			if err != nil {
				return err
			}

			var domain typeddata.Domain
			if domainFile != "" {
				if err := readYAMLOrJSON(domainFile, &domain); err != nil {
					return err
				}
			} else {
				client, err := opts.client(false)
				if err != nil {
					return err
				}
				defer client.Close()
				ctx, cancel := opts.context()
				defer cancel()
				if domain, err = client.Domain(ctx); err != nil {
					return err
				}
			}

			sig, err := p.Sign(key, domain)
			if err != nil {
				return err
			}
			signed := &SignedCredential{Domain: domain, Payload: p, Signature: sig, Signer: key.Address()}
			if out == "" {
				return printJSON(cmd.OutOrStdout(), signed)
			}
			raw, err := jsonBytes(signed)
			if err != nil {
				return err
			}
			return errors.Wrapf(ioutil.WriteFile(out, raw, 0644), "error writing [%s]", out)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "Hash this document instead of taking a hash argument.")
	flags.StringVar(&domainFile, "domain", "", "YAML or JSON file with the node's signing domain.")
	flags.StringVarP(&out, "out", "o", "", "Write the signed credential to this file instead of stdout.")
	flags.StringVar(&p.StudentName, "student", "", "Student name.")
	flags.StringVar(&p.Course, "course", "", "Course name.")
	flags.StringVar(&p.StorageRef, "storage-ref", "", "Where the document is stored, e.g. an IPFS CID.")
	flags.Int64Var(&issueDate, "issue-date", 0, "Issue date as a unix timestamp; defaults to now.")
	return cmd
}

func issueCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "issue [docHash]",
		Short: "Issue a credential as the key holder.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := docHash(args, file)
			if err != nil {
				return err
			}
			client, err := opts.client(true)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context()
			defer cancel()

			resp, err := client.Issue(ctx, h)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "issued %s by %s at sequence %d\n", h.Hex(), resp.Caller.Hex(), resp.Head)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Hash this document instead of taking a hash argument.")
	return cmd
}

func issueSignedCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-signed <signed.json>",
		Short: "Submit a credential signed with sign.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var signed SignedCredential
			if err := readYAMLOrJSON(args[0], &signed); err != nil {
				return err
			}
			client, err := opts.client(false)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context()
			defer cancel()

			resp, err := client.IssueWithSignature(ctx, signed.Payload, signed.Signature)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "issued %s by %s at sequence %d\n",
				signed.Payload.DocHash.Hex(), resp.Issuer.Hex(), resp.Head)
			return nil
		},
	}
}

func revokeCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "revoke [docHash]",
		Short: "Revoke an issued credential.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := docHash(args, file)
			if err != nil {
				return err
			}
			client, err := opts.client(true)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context()
			defer cancel()

			resp, err := client.Revoke(ctx, h)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s by %s at sequence %d\n", h.Hex(), resp.Caller.Hex(), resp.Head)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Hash this document instead of taking a hash argument.")
	return cmd
}

// grantCmd builds grant and revoke-role, which differ only in the call.
func grantCmd(opts *options, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <ADMIN|ISSUER> <address>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := ledger.ParseRole(args[0])
			if err != nil {
				return err
			}
			id, err := crypto.HexToAddress(args[1])
			if err != nil {
				return err
			}
			client, err := opts.client(true)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context()
			defer cancel()

			call, verb := client.Grant, "granted"
			if use == "revoke-role" {
				call, verb = client.RevokeRole, "revoked"
			}
			resp, err := call(ctx, role, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s, head %d\n", verb, role, id.Hex(), resp.Head)
			return nil
		},
	}
}

func verifyCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "verify [docHash]",
		Short: "Show the status of a credential.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := docHash(args, file)
			if err != nil {
				return err
			}
			client, err := opts.client(false)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context()
			defer cancel()

			status, err := client.Verify(ctx, h)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Hash this document instead of taking a hash argument.")
	return cmd
}

func eventsCmd(opts *options) *cobra.Command {
	var from, to uint64
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print logged events in a sequence range.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(false)
			if err != nil {
				return err
			}
			defer client.Close()
			ctx, cancel := opts.context()
			defer cancel()

			if from == 0 {
				from = 1
			}
			for {
				resp, err := client.Events(ctx, from, to)
				if err != nil {
					return err
				}
				for _, ev := range resp.Events {
					if err := printJSON(cmd.OutOrStdout(), ev); err != nil {
						return err
					}
				}
				if len(resp.Events) == 0 {
					return nil
				}
				from = resp.Events[len(resp.Events)-1].Sequence + 1
				if from > resp.Head || (to != 0 && from > to) {
					return nil
				}
			}
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 1, "First sequence number.")
	cmd.Flags().Uint64Var(&to, "to", 0, "Last sequence number; 0 means the head.")
	return cmd
}

func watchCmd(opts *options) *cobra.Command {
	var from uint64
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the event log until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(false)
			if err != nil {
				return err
			}
			defer client.Close()

			stream, err := client.Watch(cmd.Context(), from)
			if err != nil {
				return err
			}
			for {
				ev, err := stream.Recv()
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), ev); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 1, "First sequence number.")
	return cmd
}
