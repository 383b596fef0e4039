/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zhigui-projects/go-attest/common/log"
	"github.com/zhigui-projects/go-attest/config"
)

// The main command describes the service and
// defaults to printing the help message.
var mainCmd = &cobra.Command{Use: "attestd"}

var configPath string

var nodeStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the attestation node.",
	Long:  `Start a node that owns the credential ledger and serves the registry API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("trailing args detected")
		}
		// Parsing of the command line is done so silence cmd usage
		cmd.SilenceUsage = true
		return serve()
	},
}

func startCmd() *cobra.Command {
	flags := nodeStartCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "node config file; ATTEST_* environment variables override it")
	return nodeStartCmd
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return err
	}
	logger := log.GetLogger("module", "attestd")

	node, err := NewNode(cfg)
	if err != nil {
		logger.Error("Failed to start node", "error", err)
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	errc := make(chan error, 1)
	go func() { errc <- node.Serve() }()

	select {
	case sig := <-signals:
		logger.Info("Received signal, shutting down", "signal", sig)
	case err = <-errc:
		logger.Error("Server stopped unexpectedly", "error", err)
	}
	if stopErr := node.Stop(); err == nil {
		err = stopErr
	}
	return err
}

func main() {
	mainCmd.AddCommand(startCmd())
	// On failure Cobra prints the usage message and error string, so we only
	// need to exit with a non-0 status
	if mainCmd.Execute() != nil {
		os.Exit(1)
	}
}
