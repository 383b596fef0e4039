/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rpc

import (
	"context"

	"github.com/zhigui-projects/go-attest/ledger"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "attest.Registry"

// RegistryServer is the server API of the registry service.
type RegistryServer interface {
	Issue(context.Context, *CommandRequest) (*CommandResponse, error)
	IssueWithSignature(context.Context, *IssueSignedRequest) (*IssueSignedResponse, error)
	Revoke(context.Context, *CommandRequest) (*CommandResponse, error)
	Grant(context.Context, *CommandRequest) (*CommandResponse, error)
	RevokeRole(context.Context, *CommandRequest) (*CommandResponse, error)
	Verify(context.Context, *VerifyRequest) (*VerifyResponse, error)
	HasRole(context.Context, *HasRoleRequest) (*HasRoleResponse, error)
	Events(context.Context, *EventsRequest) (*EventsResponse, error)
	Domain(context.Context, *DomainRequest) (*DomainResponse, error)
	Watch(*WatchRequest, WatchServer) error
}

// WatchServer is the server side of a Watch stream.
type WatchServer interface {
	Send(*ledger.Event) error
	grpc.ServerStream
}

// RegisterRegistryServer registers srv on s.
func RegisterRegistryServer(s *grpc.Server, srv RegistryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the registry service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Issue", RegistryServer.Issue),
		unary("IssueWithSignature", RegistryServer.IssueWithSignature),
		unary("Revoke", RegistryServer.Revoke),
		unary("Grant", RegistryServer.Grant),
		unary("RevokeRole", RegistryServer.RevokeRole),
		unary("Verify", RegistryServer.Verify),
		unary("HasRole", RegistryServer.HasRole),
		unary("Events", RegistryServer.Events),
		unary("Domain", RegistryServer.Domain),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(RegistryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RegistryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(RegistryServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RegistryServer).Watch(in, &watchServer{stream})
}

type watchServer struct {
	grpc.ServerStream
}

func (x *watchServer) Send(ev *ledger.Event) error {
	return x.ServerStream.SendMsg(ev)
}
