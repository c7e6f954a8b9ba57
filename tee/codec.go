package tee

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/rhombus-tech/POC4/core"
)

const (
	jsonCodecName = "json"

	ServiceName        = "tee.v1.TeeBackend"
	executeMethod      = "/" + ServiceName + "/Execute"
	attestationsMethod = "/" + ServiceName + "/Attestations"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries the backend service messages as JSON so the service
// needs no generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

type AttestationsRequest struct{}

type AttestationsResponse struct {
	Attestations []core.TEEAttestation `json:"attestations"`
}

// BackendServer is the server side of the backend service.
type BackendServer interface {
	Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.ExecutionResult, error)
	Attestations(ctx context.Context, req *AttestationsRequest) (*AttestationsResponse, error)
}

var backendServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler:    executeHandler,
		},
		{
			MethodName: "Attestations",
			Handler:    attestationsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tee/v1/backend",
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(core.ExecutionPayload)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BackendServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: executeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BackendServer).Execute(ctx, req.(*core.ExecutionPayload))
	}
	return interceptor(ctx, in, info, handler)
}

func attestationsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AttestationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BackendServer).Attestations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: attestationsMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BackendServer).Attestations(ctx, req.(*AttestationsRequest))
	}
	return interceptor(ctx, in, info, handler)
}
