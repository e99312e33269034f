// Package adminrpc exposes the migration control plane over gRPC.
//
// Messages are google.protobuf.Struct and Empty, so the service needs no
// generated code: the descriptor below is what protoc-gen-go-grpc would emit
// for
//
//	service MigrationControl {
//	  rpc Status(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Stage(google.protobuf.Struct) returns (google.protobuf.Struct);
//	  rpc Start(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Advance(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Rollback(google.protobuf.Empty) returns (google.protobuf.Struct);
//	}
package adminrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "hotswap.v1.MigrationControl"
	// CandidateHealth is the health service name that reports SERVING while
	// a validated candidate is staged or migrating.
	CandidateHealth = "hotswap.candidate"
)

// MigrationControlServer is the server API for MigrationControl.
type MigrationControlServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Start(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Advance(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Rollback(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// #region descriptor

func unary[Req any](method string, call func(MigrationControlServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(MigrationControlServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes MigrationControl for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MigrationControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", MigrationControlServer.Status),
		unary("Stage", MigrationControlServer.Stage),
		unary("Start", MigrationControlServer.Start),
		unary("Advance", MigrationControlServer.Advance),
		unary("Rollback", MigrationControlServer.Rollback),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hotswap/v1/migration_control.proto",
}

// Register installs srv on s.
func Register(s grpc.ServiceRegistrar, srv MigrationControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// #endregion descriptor
