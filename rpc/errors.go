/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/ledger"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorDomain = "attest"

var errorKinds = []struct {
	err    error
	reason string
	code   codes.Code
}{
	{ledger.ErrAlreadyIssued, "ALREADY_ISSUED", codes.AlreadyExists},
	{ledger.ErrNotIssued, "NOT_ISSUED", codes.FailedPrecondition},
	{ledger.ErrAlreadyRevoked, "ALREADY_REVOKED", codes.FailedPrecondition},
	{ledger.ErrInvalidSignature, "INVALID_SIGNATURE", codes.InvalidArgument},
	{ledger.ErrEncoding, "ENCODING", codes.InvalidArgument},
	{ledger.ErrUnauthorized, "UNAUTHORIZED", codes.PermissionDenied},
}

// toStatus converts a ledger error into a gRPC status carrying its kind.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	cause := errors.Cause(err)
	switch cause {
	case context.Canceled:
		return status.Error(codes.Canceled, err.Error())
	case context.DeadlineExceeded:
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	for _, k := range errorKinds {
		if cause != k.err {
			continue
		}
		st := status.New(k.code, err.Error())
		if withInfo, e := st.WithDetails(&errdetails.ErrorInfo{Reason: k.reason, Domain: errorDomain}); e == nil {
			st = withInfo
		}
		return st.Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus restores the ledger error kind of a status returned by the
// server, so callers can test it with errors.Cause.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.Domain != errorDomain {
			continue
		}
		for _, k := range errorKinds {
			if k.reason == info.Reason {
				return &remoteError{kind: k.err, msg: st.Message()}
			}
		}
	}
	return err
}

// remoteError is a ledger error reported by the server.
type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Cause() error  { return e.kind }
func (e *remoteError) Unwrap() error { return e.kind }
