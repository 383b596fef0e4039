/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the attestd node configuration from a YAML file with
// ATTEST_* environment overrides.
package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/common/log"
	"github.com/zhigui-projects/go-attest/transport"
	"github.com/zhigui-projects/go-attest/typeddata"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ATTEST_"

// Config is the node configuration.
type Config struct {
	Log log.Config `yaml:"log"`
	// DataDir holds the ledger database.
	DataDir string `yaml:"dataDir"`
	// Listen is the gRPC listen address.
	Listen string             `yaml:"listen"`
	TLS    transport.TLSFiles `yaml:"tls"`
	Domain typeddata.Domain   `yaml:"domain"`
	// Admin receives the ADMIN and ISSUER roles when the ledger is created.
	Admin crypto.Address `yaml:"admin"`
	// AuditFeed is the SQLite audit database path. Empty disables the feed.
	AuditFeed string `yaml:"auditFeed"`
	// PruneInterval is how often used signed commands past their deadline
	// are forgotten.
	PruneInterval time.Duration `yaml:"pruneInterval"`
}

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Log:     log.Config{Level: "info", Format: "terminal"},
		DataDir: "data",
		Listen:  "127.0.0.1:7050",
		Domain: typeddata.Domain{
			Name:    "Credential Registry",
			Version: "1",
			ChainID: 1,
		},
		PruneInterval: time.Hour,
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading config file [%s]", path)
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, errors.Wrapf(err, "error parsing config file [%s]", path)
		}
	}
	if err := applyEnv(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the fields a node cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New("dataDir is required")
	case c.Listen == "":
		return errors.New("listen address is required")
	case c.Domain.Name == "":
		return errors.New("domain name is required")
	case c.PruneInterval <= 0:
		return errors.Errorf("pruneInterval must be positive, got %s", c.PruneInterval)
	}
	return nil
}

func applyEnv(c *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":      &c.Log.Level,
		"LOG_FORMAT":     &c.Log.Format,
		"LOG_ERROR_FILE": &c.Log.ErrorFile,
		"DATA_DIR":       &c.DataDir,
		"LISTEN":         &c.Listen,
		"AUDIT_FEED":     &c.AuditFeed,
		"DOMAIN_NAME":    &c.Domain.Name,
		"TLS_CERT_FILE":  &c.TLS.CertFile,
		"TLS_KEY_FILE":   &c.TLS.KeyFile,
	}
	for name, field := range strs {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*field = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "TLS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "%sTLS_ENABLED has invalid value %q", envPrefix, v)
		}
		c.TLS.Enabled = b
	}
	if v, ok := os.LookupEnv(envPrefix + "CHAIN_ID"); ok {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "%sCHAIN_ID has invalid value %q", envPrefix, v)
		}
		c.Domain.ChainID = id
	}
	if v, ok := os.LookupEnv(envPrefix + "ADMIN"); ok {
		a, err := crypto.HexToAddress(v)
		if err != nil {
			return errors.WithMessagef(err, "%sADMIN", envPrefix)
		}
		c.Admin = a
	}
	if v, ok := os.LookupEnv(envPrefix + "PRUNE_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "%sPRUNE_INTERVAL has invalid duration %q", envPrefix, v)
		}
		c.PruneInterval = d
	}
	return nil
}
