/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import "github.com/pkg/errors"

// ErrNotFound is returned by Database.Get for a missing key.
var ErrNotFound = errors.New("not found")

// Database is an ordered key/value store. Writes made through a Batch are
// applied atomically.
type Database interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	NewBatch() Batch
	Write(batch Batch) error
	// Iterate calls fn for every key in [start, limit) in ascending order
	// until fn returns false. A nil limit means no upper bound. The slices
	// passed to fn are only valid for the duration of the call.
	Iterate(start, limit []byte, fn func(key, value []byte) bool) error
	Close() error
}

type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Len() int
	Reset()
}
