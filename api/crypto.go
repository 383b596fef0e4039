/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

import "github.com/zhigui-projects/go-attest/common/crypto"

// Signer produces recoverable signatures over 32-byte digests.
type Signer interface {
	Sign(digest []byte) (crypto.Signature, error)
	Address() crypto.Address
}
