/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package leveldb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhigui-projects/go-attest/api"
)

func TestBatchAndIterate(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	b := db.NewBatch()
	b.Put([]byte("e/1"), []byte("one"))
	b.Put([]byte("e/2"), []byte("two"))
	b.Put([]byte("e/3"), []byte("three"))
	b.Put([]byte("r/x"), []byte("record"))
	assert.Equal(t, 4, b.Len())
	require.NoError(t, db.Write(b))

	v, err := db.Get([]byte("e/2"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(v))

	_, err = db.Get([]byte("e/9"))
	assert.Equal(t, api.ErrNotFound, err)

	ok, err := db.Has([]byte("r/x"))
	require.NoError(t, err)
	assert.True(t, ok)

	var keys []string
	err = db.Iterate([]byte("e/"), []byte("e/3"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e/1", "e/2"}, keys)

	keys = nil
	err = db.Iterate([]byte("e/"), nil, func(k, v []byte) bool {
		keys = append(keys, string(k))
		return len(keys) < 3
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e/1", "e/2", "e/3"}, keys)

	b.Reset()
	b.Delete([]byte("r/x"))
	require.NoError(t, db.Write(b))
	ok, err = db.Has([]byte("r/x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	db, err := Open(dir)
	require.NoError(t, err)

	b := db.NewBatch()
	b.Put([]byte("k"), []byte("v"))
	require.NoError(t, db.Write(b))
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()
	v, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
