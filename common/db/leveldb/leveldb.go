/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package leveldb

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/common/log"
)

var logger = log.GetLogger("module", "db")

// DB is an api.Database backed by goleveldb. Every batch is written with
// fsync.
type DB struct {
	path string
	db   *leveldb.DB
	wo   *opt.WriteOptions
}

// Open opens or creates the database in dir.
func Open(dir string) (*DB, error) {
	if _, err := log.CreateDirIfMissing(dir); err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{ErrorIfMissing: false})
	if err != nil {
		return nil, errors.Wrapf(err, "error opening leveldb [%s]", dir)
	}
	logger.Debug("opened leveldb", "path", dir)
	return &DB{path: dir, db: db, wo: &opt.WriteOptions{Sync: true}}, nil
}

// NewMemDB returns a database held entirely in memory.
func NewMemDB() *DB {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// memory storage cannot fail to open
		panic(err)
	}
	return &DB{path: ":memory:", db: db, wo: &opt.WriteOptions{}}
}

func (d *DB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, api.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error retrieving leveldb key [%x]", key)
	}
	return v, nil
}

func (d *DB) Has(key []byte) (bool, error) {
	ok, err := d.db.Has(key, nil)
	if err != nil {
		return false, errors.Wrapf(err, "error checking leveldb key [%x]", key)
	}
	return ok, nil
}

func (d *DB) NewBatch() api.Batch {
	return &batch{b: new(leveldb.Batch)}
}

func (d *DB) Write(b api.Batch) error {
	lb, ok := b.(*batch)
	if !ok {
		return errors.Errorf("unsupported batch type %T", b)
	}
	if err := d.db.Write(lb.b, d.wo); err != nil {
		return errors.Wrapf(err, "error writing batch of %d entries to leveldb [%s]", lb.b.Len(), d.path)
	}
	return nil
}

func (d *DB) Iterate(start, limit []byte, fn func(key, value []byte) bool) error {
	it := d.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer it.Release()
	for it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return errors.Wrap(it.Error(), "leveldb iterator failed")
}

func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return errors.Wrapf(err, "error closing leveldb [%s]", d.path)
	}
	return nil
}

type batch struct {
	b *leveldb.Batch
}

func (b *batch) Put(key, value []byte) { b.b.Put(key, value) }
func (b *batch) Delete(key []byte)     { b.b.Delete(key) }
func (b *batch) Len() int              { return b.b.Len() }
func (b *batch) Reset()                { b.b.Reset() }
