/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/typeddata"
)

// Error kinds returned by ledger operations. Returned errors wrap one of
// these with the rejected document hash or identity; test with errors.Is or
// errors.Cause.
var (
	ErrAlreadyIssued    = errors.New("credential already issued")
	ErrNotIssued        = errors.New("credential not issued")
	ErrAlreadyRevoked   = errors.New("credential already revoked")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSignature = crypto.ErrInvalidSignature
	ErrEncoding         = typeddata.ErrEncoding
)
