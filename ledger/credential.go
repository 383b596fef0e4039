/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

// Record is the stored state of one credential. Records are never mutated
// in place; every transition publishes a fresh copy.
type Record struct {
	DocHash crypto.Hash `json:"docHash"`
	// IssuedAt is a unix timestamp in seconds. Zero means never issued.
	IssuedAt   int64          `json:"issuedAt"`
	Issuer     crypto.Address `json:"issuer"`
	StorageRef string         `json:"storageRef,omitempty"`
	Revoked    bool           `json:"revoked"`
	RevokedAt  int64          `json:"revokedAt,omitempty"`
	RevokedBy  crypto.Address `json:"revokedBy"`
}

// Status is the result of Verify. The zero Status describes a document
// that was never issued.
type Status struct {
	Issued     bool           `json:"issued"`
	Revoked    bool           `json:"revoked"`
	IssuedAt   int64          `json:"issuedAt"`
	Issuer     crypto.Address `json:"issuer"`
	StorageRef string         `json:"storageRef"`
}

func (r *Record) status() Status {
	return Status{
		Issued:     r.IssuedAt != 0,
		Revoked:    r.Revoked,
		IssuedAt:   r.IssuedAt,
		Issuer:     r.Issuer,
		StorageRef: r.StorageRef,
	}
}

// Verify returns the committed status of docHash. Unknown hashes yield the
// zero Status.
func (l *Ledger) Verify(docHash crypto.Hash) Status {
	if v, ok := l.records.Load(docHash); ok {
		return v.(*Record).status()
	}
	return Status{}
}

// Record returns a copy of the stored record, or false if docHash was never
// issued.
func (l *Ledger) Record(docHash crypto.Hash) (Record, bool) {
	if v, ok := l.records.Load(docHash); ok {
		return *v.(*Record), true
	}
	return Record{}, false
}

// Issue records docHash as issued by caller, who must hold ISSUER.
func (l *Ledger) Issue(caller crypto.Address, docHash crypto.Hash) error {
	l.mut.Lock()
	defer l.mut.Unlock()

	if err := l.requireRole(RoleIssuer, caller); err != nil {
		return errors.WithMessagef(err, "issue %s", docHash)
	}
	return l.issue(caller, docHash, "")
}

// IssueWithSignature records p.DocHash as issued by the signer of sig over
// the payload digest under the ledger domain. The signer must hold ISSUER.
// The storage reference is bound by the signature.
func (l *Ledger) IssueWithSignature(p Payload, sig crypto.Signature) (crypto.Address, error) {
	digest, err := p.Digest(l.domain)
	if err != nil {
		return crypto.Address{}, err
	}

	l.mut.Lock()
	defer l.mut.Unlock()

	signer, err := l.verifier.Verify(digest, sig)
	if err != nil {
		return signer, errors.WithMessagef(err, "issue %s", p.DocHash)
	}
	return signer, l.issue(signer, p.DocHash, p.StorageRef)
}

// issue must be called with l.mut held and the issuer already authorized.
func (l *Ledger) issue(issuer crypto.Address, docHash crypto.Hash, storageRef string) error {
	if docHash.IsZero() {
		return errors.Wrap(ErrEncoding, "empty document hash")
	}
	if _, ok := l.records.Load(docHash); ok {
		return errors.Wrapf(ErrAlreadyIssued, "document %s", docHash)
	}

	tx := l.begin()
	tx.putRecord(&Record{
		DocHash:    docHash,
		IssuedAt:   tx.now,
		Issuer:     issuer,
		StorageRef: storageRef,
	})
	tx.appendEvent(&Event{Kind: Issued, DocHash: docHash, Actor: issuer, StorageRef: storageRef})
	if err := l.commit(tx); err != nil {
		return errors.WithMessagef(err, "issue %s", docHash)
	}
	l.logger.Info("credential issued", "docHash", docHash.Hex(), "issuer", issuer.Hex(), "storageRef", storageRef)
	return nil
}

// Revoke marks an issued credential as revoked. caller must hold ISSUER.
// Revocation is terminal.
func (l *Ledger) Revoke(caller crypto.Address, docHash crypto.Hash) error {
	l.mut.Lock()
	defer l.mut.Unlock()

	if err := l.requireRole(RoleIssuer, caller); err != nil {
		return errors.WithMessagef(err, "revoke %s", docHash)
	}
	v, ok := l.records.Load(docHash)
	if !ok {
		return errors.Wrapf(ErrNotIssued, "document %s", docHash)
	}
	old := v.(*Record)
	if old.Revoked {
		return errors.Wrapf(ErrAlreadyRevoked, "document %s", docHash)
	}

	tx := l.begin()
	rec := *old
	rec.Revoked = true
	rec.RevokedAt = tx.now
	rec.RevokedBy = caller
	tx.putRecord(&rec)
	tx.appendEvent(&Event{Kind: Revoked, DocHash: docHash, Actor: caller})
	if err := l.commit(tx); err != nil {
		return errors.WithMessagef(err, "revoke %s", docHash)
	}
	l.logger.Info("credential revoked", "docHash", docHash.Hex(), "revoker", caller.Hex())
	return nil
}
