/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

// RoleChecker reports role membership.
type RoleChecker interface {
	HasRole(role Role, id crypto.Address) bool
}

// SignatureVerifier authorizes signed payloads: the signer recovered from a
// digest must hold ISSUER.
type SignatureVerifier struct {
	roles RoleChecker
}

func NewSignatureVerifier(roles RoleChecker) *SignatureVerifier {
	return &SignatureVerifier{roles: roles}
}

// Verify returns the signer of digest. It fails with ErrInvalidSignature for
// malformed, malleable or unrecoverable signatures and with ErrUnauthorized
// when the signer is not an issuer.
func (v *SignatureVerifier) Verify(digest crypto.Hash, sig crypto.Signature) (crypto.Address, error) {
	signer, err := Recover(digest, sig)
	if err != nil {
		return signer, err
	}
	if !v.roles.HasRole(RoleIssuer, signer) {
		return signer, errors.Wrapf(ErrUnauthorized, "signer %s does not hold role %s", signer, RoleIssuer)
	}
	return signer, nil
}

// Recover returns the identity that produced sig over digest.
func Recover(digest crypto.Hash, sig crypto.Signature) (crypto.Address, error) {
	return crypto.Recover(digest[:], sig)
}
