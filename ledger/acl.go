/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

// Role is a capability held by identities.
type Role string

const (
	// RoleAdmin may grant and revoke any role.
	RoleAdmin Role = "ADMIN"
	// RoleIssuer may issue and revoke credentials.
	RoleIssuer Role = "ISSUER"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleIssuer}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", errors.Wrapf(ErrEncoding, "unknown role %q", s)
}

type member struct {
	role Role
	id   crypto.Address
}

// HasRole reports whether id holds role in the last committed role table.
// It never blocks on pending mutations.
func (l *Ledger) HasRole(role Role, id crypto.Address) bool {
	_, ok := l.members.Load(member{role, id})
	return ok
}

// Members returns the identities holding role, in no particular order.
func (l *Ledger) Members(role Role) []crypto.Address {
	var ids []crypto.Address
	l.members.Range(func(k, _ interface{}) bool {
		if m := k.(member); m.role == role {
			ids = append(ids, m.id)
		}
		return true
	})
	return ids
}

// Grant gives role to id. caller must hold ADMIN. Granting a role that is
// already held succeeds without appending an event.
func (l *Ledger) Grant(caller crypto.Address, role Role, id crypto.Address) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}

	l.mut.Lock()
	defer l.mut.Unlock()

	if err := l.requireRole(RoleAdmin, caller); err != nil {
		return err
	}
	if l.HasRole(role, id) {
		return nil
	}

	tx := l.begin()
	tx.addMember(member{role, id})
	tx.appendEvent(&Event{Kind: RoleGranted, Actor: caller, Role: role, Subject: id})
	if err := l.commit(tx); err != nil {
		return errors.WithMessagef(err, "grant %s to %s", role, id)
	}
	l.logger.Info("role granted", "role", role, "subject", id.Hex(), "admin", caller.Hex())
	return nil
}

// RevokeRole removes role from id. caller must hold ADMIN. Revoking a role
// that is not held succeeds without appending an event. An admin may remove
// the last admin, after which the role table is frozen.
func (l *Ledger) RevokeRole(caller crypto.Address, role Role, id crypto.Address) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}

	l.mut.Lock()
	defer l.mut.Unlock()

	if err := l.requireRole(RoleAdmin, caller); err != nil {
		return err
	}
	if !l.HasRole(role, id) {
		return nil
	}

	tx := l.begin()
	tx.removeMember(member{role, id})
	tx.appendEvent(&Event{Kind: RoleRevoked, Actor: caller, Role: role, Subject: id})
	if err := l.commit(tx); err != nil {
		return errors.WithMessagef(err, "revoke %s from %s", role, id)
	}
	l.logger.Info("role revoked", "role", role, "subject", id.Hex(), "admin", caller.Hex())
	if role == RoleAdmin && len(l.Members(RoleAdmin)) == 0 {
		l.logger.Warning("last admin removed, roles can no longer change", "subject", id.Hex())
	}
	return nil
}

// requireRole must be called with l.mut held.
func (l *Ledger) requireRole(role Role, id crypto.Address) error {
	if !l.HasRole(role, id) {
		return errors.Wrapf(ErrUnauthorized, "%s does not hold role %s", id, role)
	}
	return nil
}
