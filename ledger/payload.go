/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/typeddata"
)

// CredentialType is the primary type signed for credential issuance.
const CredentialType = "Credential"

// CredentialTypes is the typed data schema of a signed credential payload.
var CredentialTypes = typeddata.Types{
	CredentialType: {
		{Name: "docHash", Type: "bytes32"},
		{Name: "studentName", Type: "string"},
		{Name: "course", Type: "string"},
		{Name: "issueDate", Type: "uint256"},
		{Name: "storageRef", Type: "string"},
	},
}

var credentialEncoder = mustEncoder(CredentialTypes)

func mustEncoder(types typeddata.Types) *typeddata.Encoder {
	enc, err := typeddata.NewEncoder(types)
	if err != nil {
		panic(err)
	}
	return enc
}

// Payload is an off-chain authorization to issue a credential.
type Payload struct {
	DocHash     crypto.Hash `json:"docHash" yaml:"docHash"`
	StudentName string      `json:"studentName" yaml:"studentName"`
	Course      string      `json:"course" yaml:"course"`
	// IssueDate is a unix timestamp chosen by the signer.
	IssueDate  uint64 `json:"issueDate" yaml:"issueDate"`
	StorageRef string `json:"storageRef" yaml:"storageRef"`
}

// Message returns p as a typed data message.
func (p Payload) Message() typeddata.Message {
	return typeddata.Message{
		"docHash":     p.DocHash,
		"studentName": p.StudentName,
		"course":      p.Course,
		"issueDate":   new(big.Int).SetUint64(p.IssueDate),
		"storageRef":  p.StorageRef,
	}
}

// Digest returns the typed data digest of p under domain.
func (p Payload) Digest(domain typeddata.Domain) (crypto.Hash, error) {
	return credentialEncoder.Digest(domain, CredentialType, p.Message())
}

// Sign signs the digest of p under domain.
func (p Payload) Sign(signer api.Signer, domain typeddata.Domain) (crypto.Signature, error) {
	digest, err := p.Digest(domain)
	if err != nil {
		return crypto.Signature{}, err
	}
	return signer.Sign(digest[:])
}

// PayloadFromMessage converts a loosely typed message, as decoded from JSON,
// into a Payload. Missing, superfluous or mistyped fields fail with
// ErrEncoding.
func PayloadFromMessage(msg typeddata.Message) (Payload, error) {
	if _, err := credentialEncoder.HashStruct(CredentialType, msg); err != nil {
		return Payload{}, err
	}
	var (
		p   Payload
		err error
	)
	if p.DocHash, err = msg.Bytes32("docHash"); err != nil {
		return p, err
	}
	if p.StudentName, err = msg.String("studentName"); err != nil {
		return p, err
	}
	if p.Course, err = msg.String("course"); err != nil {
		return p, err
	}
	if p.IssueDate, err = msg.Uint64("issueDate"); err != nil {
		return p, errors.WithMessage(err, "issueDate")
	}
	if p.StorageRef, err = msg.String("storageRef"); err != nil {
		return p, err
	}
	return p, nil
}
