package provider

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/pkg/core/logging"
)

// ServiceName is the fully qualified gRPC service of a provider
const ServiceName = "wiener.provider.v1.Provider"

const (
	invokeMethod   = "/" + ServiceName + "/Invoke"
	describeMethod = "/" + ServiceName + "/Describe"
)

// ProviderServer is the server side of the provider service
type ProviderServer interface {
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Value, error)
	Describe(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes the provider service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProviderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "Describe", Handler: describeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wiener/provider/v1/provider.proto",
}

// RegisterProviderServer registers srv on s
func RegisterProviderServer(s grpc.ServiceRegistrar, srv ProviderServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProviderServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: invokeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProviderServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func describeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProviderServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ProviderServer).Describe(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Service serves an operation set over gRPC
type Service struct {
	desc   Description
	ops    *Operations
	logger *logging.Logger
}

// NewService creates a provider service of the given type and name
func NewService(typ, name string, ops *Operations) *Service {
	return &Service{
		desc:   Description{Type: typ, Name: name},
		ops:    ops,
		logger: logging.New("provider-service"),
	}
}

// Description reports the service type, name and current operations
func (s *Service) Description() Description {
	d := s.desc
	d.Operations = s.ops.Names()
	return d
}

// Invoke runs one operation
func (s *Service) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	fields := req.GetFields()
	op := fields["operation"].GetStringValue()
	if op == "" {
		return nil, status.Error(codes.InvalidArgument, "operation is required")
	}

	var args []script.Term
	if list := fields["args"].GetListValue(); list != nil {
		for _, v := range list.GetValues() {
			args = append(args, script.FromValue(v.AsInterface()))
		}
	}

	val, err := s.ops.Call(ctx, op, args)
	if err != nil {
		s.logger.Warn("Operation failed", "operation", op, "error", err)
		switch {
		case errors.Is(err, ErrReferenceUnavailable):
			return nil, status.Errorf(codes.NotFound, "operation %s not available", op)
		case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			return nil, status.Errorf(codes.DeadlineExceeded, "operation %s timed out", op)
		default:
			return nil, status.Errorf(codes.Internal, "operation %s: %v", op, err)
		}
	}

	out, err := structpb.NewValue(script.ToValue(val))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result of %s: %v", op, err)
	}
	return out, nil
}

// Describe reports the service description
func (s *Service) Describe(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	d := s.Description()
	ops := make([]interface{}, len(d.Operations))
	for i, op := range d.Operations {
		ops[i] = op
	}
	return structpb.NewStruct(map[string]interface{}{
		"type":       d.Type,
		"name":       d.Name,
		"operations": ops,
	})
}

// GRPCInvoker calls a provider service over a client connection
type GRPCInvoker struct {
	conn grpc.ClientConnInterface
}

// NewGRPCInvoker wraps conn. Close closes conn when it supports closing.
func NewGRPCInvoker(conn grpc.ClientConnInterface) *GRPCInvoker {
	return &GRPCInvoker{conn: conn}
}

// Invoke calls operation with args
func (g *GRPCInvoker) Invoke(ctx context.Context, operation string, args []script.Term) (script.Term, error) {
	values := make([]interface{}, len(args))
	for i, a := range args {
		values[i] = script.ToValue(a)
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"operation": operation,
		"args":      values,
	})
	if err != nil {
		return script.Term{}, fmt.Errorf("encode arguments of %s: %w", operation, err)
	}

	out := new(structpb.Value)
	if err := g.conn.Invoke(ctx, invokeMethod, req, out); err != nil {
		return script.Term{}, mapStatus(ctx, err)
	}
	return script.FromValue(out.AsInterface()), nil
}

// Describe asks the provider for its description
func (g *GRPCInvoker) Describe(ctx context.Context) (Description, error) {
	out := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, describeMethod, &emptypb.Empty{}, out); err != nil {
		return Description{}, mapStatus(ctx, err)
	}
	fields := out.GetFields()
	d := Description{
		Type: fields["type"].GetStringValue(),
		Name: fields["name"].GetStringValue(),
	}
	if list := fields["operations"].GetListValue(); list != nil {
		for _, v := range list.GetValues() {
			d.Operations = append(d.Operations, v.GetStringValue())
		}
	}
	return d, nil
}

// Close closes the underlying connection
func (g *GRPCInvoker) Close() error {
	if c, ok := g.conn.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func mapStatus(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	switch status.Code(err) {
	case codes.Unavailable:
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	case codes.NotFound, codes.Unimplemented:
		return fmt.Errorf("%w: %v", ErrReferenceUnavailable, err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
}
