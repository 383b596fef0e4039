/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/ledger"
	"github.com/zhigui-projects/go-attest/typeddata"
)

type CommandRequest struct {
	SignedCommand
}

type CommandResponse struct {
	Caller crypto.Address `json:"caller"`
	Head   uint64         `json:"head"`
}

type IssueSignedRequest struct {
	// Payload holds the Credential fields exactly as signed.
	Payload   typeddata.Message `json:"payload"`
	Signature crypto.Signature  `json:"signature"`
}

type IssueSignedResponse struct {
	Issuer crypto.Address `json:"issuer"`
	Head   uint64         `json:"head"`
}

type VerifyRequest struct {
	DocHash crypto.Hash `json:"docHash"`
}

type VerifyResponse struct {
	Status ledger.Status `json:"status"`
}

type HasRoleRequest struct {
	Role     string         `json:"role"`
	Identity crypto.Address `json:"identity"`
}

type HasRoleResponse struct {
	HasRole bool `json:"hasRole"`
}

type EventsRequest struct {
	From uint64 `json:"from"`
	// To of 0 means the head. At most MaxEvents are returned per call.
	To uint64 `json:"to"`
}

type EventsResponse struct {
	Events []*ledger.Event `json:"events"`
	Head   uint64          `json:"head"`
}

type DomainRequest struct{}

type DomainResponse struct {
	Domain typeddata.Domain `json:"domain"`
}

type WatchRequest struct {
	From uint64 `json:"from"`
}
