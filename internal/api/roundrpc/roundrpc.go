// Package roundrpc defines the operator RoundService: its gRPC descriptor, the server
// interface, a client, and the credentials the triggers authenticate with. Messages
// are google.protobuf.Struct carrying the same JSON documents as the HTTP trigger
// endpoints.
package roundrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "wordroyale.v1.RoundService"

const (
	ProcessCurrentFullMethod = "/" + ServiceName + "/ProcessCurrent"
	ProcessAllFullMethod     = "/" + ServiceName + "/ProcessAll"
	ProcessGameFullMethod    = "/" + ServiceName + "/ProcessGame"
	StartGameFullMethod      = "/" + ServiceName + "/StartGame"
)

type RoundServiceServer interface {
	ProcessCurrent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ProcessAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// ProcessGame requires a "game_id" field.
	ProcessGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StartGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterRoundServiceServer(s grpc.ServiceRegistrar, srv RoundServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoundServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessCurrent", Handler: unaryHandler(ProcessCurrentFullMethod, RoundServiceServer.ProcessCurrent)},
		{MethodName: "ProcessAll", Handler: unaryHandler(ProcessAllFullMethod, RoundServiceServer.ProcessAll)},
		{MethodName: "ProcessGame", Handler: unaryHandler(ProcessGameFullMethod, RoundServiceServer.ProcessGame)},
		{MethodName: "StartGame", Handler: unaryHandler(StartGameFullMethod, RoundServiceServer.StartGame)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wordroyale/v1/round.proto",
}

type unaryMethod func(RoundServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RoundServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(RoundServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

type RoundServiceClient interface {
	ProcessCurrent(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ProcessAll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ProcessGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	StartGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type roundServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRoundServiceClient(cc grpc.ClientConnInterface) RoundServiceClient {
	return &roundServiceClient{cc: cc}
}

func (c *roundServiceClient) ProcessCurrent(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ProcessCurrentFullMethod, in, opts...)
}

func (c *roundServiceClient) ProcessAll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ProcessAllFullMethod, in, opts...)
}

func (c *roundServiceClient) ProcessGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ProcessGameFullMethod, in, opts...)
}

func (c *roundServiceClient) StartGame(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, StartGameFullMethod, in, opts...)
}

func (c *roundServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = new(structpb.Struct)
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// SecretCredentials sends the trigger secret as a bearer token on every call.
type SecretCredentials struct {
	Secret string
	// Insecure allows sending the secret over a plaintext connection, for in-cluster
	// and local use.
	Insecure bool
}

var _ credentials.PerRPCCredentials = SecretCredentials{}

func (c SecretCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.Secret}, nil
}

func (c SecretCredentials) RequireTransportSecurity() bool {
	return !c.Insecure
}
