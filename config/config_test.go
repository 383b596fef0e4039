/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

const nodeYAML = `
log:
  level: debug
  format: logfmt
dataDir: /var/lib/attest
listen: 0.0.0.0:7050
tls:
  enabled: true
  certFile: node.crt
  keyFile: node.key
  clientRootCAs: [ca.crt]
domain:
  name: University Registry
  version: "2"
  chainId: 31337
  verifyingContract: "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
admin: "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"
auditFeed: /var/lib/attest/audit.db
pruneInterval: 10m
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	c, err := Load(writeConfig(t, nodeYAML))
	require.NoError(t, err)

	admin, _ := crypto.HexToAddress("0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826")
	contract, _ := crypto.HexToAddress("0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC")

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "logfmt", c.Log.Format)
	assert.Equal(t, "/var/lib/attest", c.DataDir)
	assert.Equal(t, "0.0.0.0:7050", c.Listen)
	assert.True(t, c.TLS.Enabled)
	assert.Equal(t, []string{"ca.crt"}, c.TLS.ClientRootCAs)
	assert.Equal(t, "University Registry", c.Domain.Name)
	assert.Equal(t, "2", c.Domain.Version)
	assert.Equal(t, uint64(31337), c.Domain.ChainID)
	assert.Equal(t, contract, c.Domain.VerifyingContract)
	assert.Equal(t, admin, c.Admin)
	assert.Equal(t, "/var/lib/attest/audit.db", c.AuditFeed)
	assert.Equal(t, 10*time.Minute, c.PruneInterval)
}

func TestDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "listen: 127.0.0.1:9000\n"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", c.Listen)
	assert.Equal(t, "data", c.DataDir)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "Credential Registry", c.Domain.Name)
	assert.Equal(t, time.Hour, c.PruneInterval)
	assert.True(t, c.Admin.IsZero())

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ATTEST_LISTEN", "127.0.0.1:7777")
	t.Setenv("ATTEST_LOG_LEVEL", "warn")
	t.Setenv("ATTEST_CHAIN_ID", "5")
	t.Setenv("ATTEST_ADMIN", "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")
	t.Setenv("ATTEST_TLS_ENABLED", "false")
	t.Setenv("ATTEST_PRUNE_INTERVAL", "30s")

	c, err := Load(writeConfig(t, nodeYAML))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", c.Listen)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, uint64(5), c.Domain.ChainID)
	assert.Equal(t, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", c.Admin.Hex())
	assert.False(t, c.TLS.Enabled)
	assert.Equal(t, 30*time.Second, c.PruneInterval)
	assert.Equal(t, "/var/lib/attest", c.DataDir)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "listen: [not, a, string]\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "admin: 0x1234\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "dataDir: \"\"\n"))
	assert.EqualError(t, err, "dataDir is required")

	t.Setenv("ATTEST_CHAIN_ID", "mainnet")
	_, err = Load("")
	assert.Error(t, err)
}
