/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	recs := make(chan *log15.Record, 4)
	l := log15.New("setLogger", "test")
	l.SetHandler(log15.ChannelHandler(recs))

	SetLogger(&DefaultLogger{Logger: l})
	defer SetLogger(nil)

	GetLogger().Info("The logger are so cool!", "docHash", "0xaa")
	GetLogger("module", "ledger").Warningf("revoked %d credentials", 2)

	r := <-recs
	assert.Equal(t, "The logger are so cool!", r.Msg)
	assert.Equal(t, []interface{}{"setLogger", "test", "docHash", "0xaa"}, r.Ctx)

	r = <-recs
	assert.Equal(t, log15.LvlWarn, r.Lvl)
	assert.Equal(t, "revoked 2 credentials", r.Msg)
	assert.Contains(t, r.Ctx, "ledger")
}

func TestNewHandler(t *testing.T) {
	errorFile := filepath.Join(t.TempDir(), "logs", "error.json")

	var buf bytes.Buffer
	h, err := NewHandler(Config{Level: "warn", Format: "logfmt", ErrorFile: errorFile}, &buf)
	require.NoError(t, err)

	l := log15.New()
	l.SetHandler(h)
	l.Info("dropped")
	l.Warn("kept", "identity", "0x01")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "identity=0x01")

	empty, err := DirEmpty(filepath.Dir(errorFile))
	require.NoError(t, err)
	assert.False(t, empty)

	_, err = NewHandler(Config{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewHandler(Config{Format: "xml"}, &buf)
	assert.Error(t, err)
}
