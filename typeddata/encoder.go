/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package typeddata

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

// Encoder hashes messages of a fixed set of struct types.
type Encoder struct {
	types Types
}

// NewEncoder validates the type set and returns an Encoder for it.
func NewEncoder(types Types) (*Encoder, error) {
	enc := &Encoder{types: make(Types, len(types)+1)}
	for name, fields := range types {
		enc.types[name] = append([]Field(nil), fields...)
	}
	if _, ok := enc.types[DomainType]; !ok {
		enc.types[DomainType] = domainFields
	}

	for name, fields := range enc.types {
		if name == "" || strings.ContainsAny(name, "(),[] ") {
			return nil, errors.Wrapf(ErrEncoding, "invalid type name %q", name)
		}
		seen := make(map[string]bool, len(fields))
		for _, f := range fields {
			if f.Name == "" || seen[f.Name] {
				return nil, errors.Wrapf(ErrEncoding, "type %s has empty or duplicate field %q", name, f.Name)
			}
			seen[f.Name] = true
			base, _, err := splitArray(f.Type)
			if err != nil {
				return nil, err
			}
			if _, ok := enc.types[base]; ok {
				continue
			}
			if !isPrimitive(base) {
				return nil, errors.Wrapf(ErrEncoding, "type %s field %s has unknown type %s", name, f.Name, f.Type)
			}
		}
	}
	return enc, nil
}

// EncodeType returns the canonical type string: the primary type followed by
// every referenced struct type in alphabetical order.
func (e *Encoder) EncodeType(primary string) (string, error) {
	if _, ok := e.types[primary]; !ok {
		return "", errors.Wrapf(ErrEncoding, "unknown type %s", primary)
	}
	deps := make(map[string]bool)
	e.dependencies(primary, deps)
	delete(deps, primary)

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range append([]string{primary}, names...) {
		buf.WriteString(name)
		buf.WriteByte('(')
		for i, f := range e.types[name] {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(f.Type)
			buf.WriteByte(' ')
			buf.WriteString(f.Name)
		}
		buf.WriteByte(')')
	}
	return buf.String(), nil
}

func (e *Encoder) dependencies(name string, found map[string]bool) {
	if found[name] {
		return
	}
	fields, ok := e.types[name]
	if !ok {
		return
	}
	found[name] = true
	for _, f := range fields {
		base, _, _ := splitArray(f.Type)
		e.dependencies(base, found)
	}
}

// TypeHash returns keccak256(EncodeType(primary)).
func (e *Encoder) TypeHash(primary string) (crypto.Hash, error) {
	t, err := e.EncodeType(primary)
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte(t)), nil
}

// HashStruct returns keccak256(typeHash || encodeData(msg)).
func (e *Encoder) HashStruct(primary string, msg Message) (crypto.Hash, error) {
	data, err := e.encodeData(primary, msg)
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.Keccak256Hash(data), nil
}

// Digest returns keccak256(0x19 0x01 || domainSeparator || hashStruct(msg)),
// the value that gets signed.
func (e *Encoder) Digest(domain Domain, primary string, msg Message) (crypto.Hash, error) {
	structHash, err := e.HashStruct(primary, msg)
	if err != nil {
		return crypto.Hash{}, err
	}
	sep := domain.Separator()
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, sep[:], structHash[:]), nil
}

func (e *Encoder) encodeData(primary string, msg Message) ([]byte, error) {
	fields, ok := e.types[primary]
	if !ok {
		return nil, errors.Wrapf(ErrEncoding, "unknown type %s", primary)
	}
	if len(msg) != len(fields) {
		for name := range msg {
			if !hasField(fields, name) {
				return nil, errors.Wrapf(ErrEncoding, "%s has no field %s", primary, name)
			}
		}
	}

	typeHash, err := e.TypeHash(primary)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, 32*(len(fields)+1)))
	buf.Write(typeHash[:])
	for _, f := range fields {
		v, ok := msg[f.Name]
		if !ok || v == nil {
			return nil, errors.Wrapf(ErrEncoding, "%s is missing field %s", primary, f.Name)
		}
		word, err := e.encodeField(f.Type, v)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s.%s", primary, f.Name)
		}
		buf.Write(word)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) encodeField(typ string, v interface{}) ([]byte, error) {
	base, length, err := splitArray(typ)
	if err != nil {
		return nil, err
	}
	if base != typ {
		items, ok := v.([]interface{})
		if !ok {
			return nil, errors.Wrapf(ErrEncoding, "expected array for %s, got %T", typ, v)
		}
		if length >= 0 && len(items) != length {
			return nil, errors.Wrapf(ErrEncoding, "%s expects %d items, got %d", typ, length, len(items))
		}
		var buf bytes.Buffer
		for i, item := range items {
			word, err := e.encodeField(base, item)
			if err != nil {
				return nil, errors.WithMessagef(err, "[%d]", i)
			}
			buf.Write(word)
		}
		return crypto.Keccak256(buf.Bytes()), nil
	}

	if _, ok := e.types[typ]; ok {
		nested, ok := asMessage(v)
		if !ok {
			return nil, errors.Wrapf(ErrEncoding, "expected struct %s, got %T", typ, v)
		}
		h, err := e.HashStruct(typ, nested)
		if err != nil {
			return nil, err
		}
		return h[:], nil
	}
	return encodePrimitive(typ, v)
}

// splitArray strips one trailing array suffix. length is -1 for dynamic
// arrays and for non-array types.
func splitArray(typ string) (base string, length int, err error) {
	if !strings.HasSuffix(typ, "]") {
		return typ, -1, nil
	}
	open := strings.LastIndex(typ, "[")
	if open <= 0 {
		return "", 0, errors.Wrapf(ErrEncoding, "malformed array type %s", typ)
	}
	base, size := typ[:open], typ[open+1:len(typ)-1]
	if size == "" {
		return base, -1, nil
	}
	n, err := strconv.Atoi(size)
	if err != nil || n <= 0 {
		return "", 0, errors.Wrapf(ErrEncoding, "malformed array length in %s", typ)
	}
	return base, n, nil
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func asMessage(v interface{}) (Message, bool) {
	switch m := v.(type) {
	case Message:
		return m, true
	case map[string]interface{}:
		return Message(m), true
	}
	return nil, false
}
