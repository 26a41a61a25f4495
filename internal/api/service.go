package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "markerengine.v1.MarkerEngine"

// Method names of the MarkerEngine service.
const (
	MethodAnalyze       = "Analyze"
	MethodAnalyzeBatch  = "AnalyzeBatch"
	MethodSessionScore  = "SessionScore"
	MethodReloadMarkers = "ReloadMarkers"
	MethodStatus        = "Status"
)

// MarkerEngineServer is the server API for the MarkerEngine service. Every message is a
// google.protobuf.Struct carrying the JSON shape of the matching Go type in this package.
type MarkerEngineServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AnalyzeBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SessionScore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReloadMarkers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedMarkerEngineServer can be embedded to keep forward compatibility.
type UnimplementedMarkerEngineServer struct{}

func (UnimplementedMarkerEngineServer) Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Analyze not implemented")
}

func (UnimplementedMarkerEngineServer) AnalyzeBatch(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method AnalyzeBatch not implemented")
}

func (UnimplementedMarkerEngineServer) SessionScore(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SessionScore not implemented")
}

func (UnimplementedMarkerEngineServer) ReloadMarkers(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ReloadMarkers not implemented")
}

func (UnimplementedMarkerEngineServer) Status(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}

type unaryCall func(MarkerEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarkerEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MarkerEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the MarkerEngine service for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarkerEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodAnalyze, Handler: unaryHandler(MethodAnalyze, MarkerEngineServer.Analyze)},
		{MethodName: MethodAnalyzeBatch, Handler: unaryHandler(MethodAnalyzeBatch, MarkerEngineServer.AnalyzeBatch)},
		{MethodName: MethodSessionScore, Handler: unaryHandler(MethodSessionScore, MarkerEngineServer.SessionScore)},
		{MethodName: MethodReloadMarkers, Handler: unaryHandler(MethodReloadMarkers, MarkerEngineServer.ReloadMarkers)},
		{MethodName: MethodStatus, Handler: unaryHandler(MethodStatus, MarkerEngineServer.Status)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterMarkerEngineServer attaches srv to s.
func RegisterMarkerEngineServer(s grpc.ServiceRegistrar, srv MarkerEngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the MarkerEngine service and converts envelopes to Go types.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := EncodeStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, opts...); err != nil {
		return err
	}
	return DecodeStruct(resp, out)
}

// Analyze runs one analysis remotely.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest, opts ...grpc.CallOption) (AnalyzeResponse, error) {
	var out AnalyzeResponse
	err := c.invoke(ctx, MethodAnalyze, req, &out, opts...)
	return out, err
}

// AnalyzeBatch runs several analyses remotely.
func (c *Client) AnalyzeBatch(ctx context.Context, req BatchRequest, opts ...grpc.CallOption) (BatchResponse, error) {
	var out BatchResponse
	err := c.invoke(ctx, MethodAnalyzeBatch, req, &out, opts...)
	return out, err
}

// SessionScore fetches a marker's aggregated session score.
func (c *Client) SessionScore(ctx context.Context, req SessionScoreRequest, opts ...grpc.CallOption) (SessionScoreResponse, error) {
	var out SessionScoreResponse
	err := c.invoke(ctx, MethodSessionScore, req, &out, opts...)
	return out, err
}

// ReloadMarkers asks the server to reload marker definitions.
func (c *Client) ReloadMarkers(ctx context.Context, opts ...grpc.CallOption) (ReloadResponse, error) {
	var out ReloadResponse
	err := c.invoke(ctx, MethodReloadMarkers, struct{}{}, &out, opts...)
	return out, err
}

// Status fetches the service status.
func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (StatusResponse, error) {
	var out StatusResponse
	err := c.invoke(ctx, MethodStatus, struct{}{}, &out, opts...)
	return out, err
}
