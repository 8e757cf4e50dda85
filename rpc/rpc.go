// Package rpc holds the plumbing shared by the gRPC services. Messages are
// google.protobuf.Struct values sent over the default proto codec, so the
// services need no generated code. Application errors travel in an "error"
// field of the response; transport errors are returned by gRPC itself.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrorField carries the server-side error message.
const ErrorField = "error"

// RemoteError is an error reported by the remote service.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Handler serves one unary method. srv is the value registered with the server.
type Handler func(ctx context.Context, srv any, req *structpb.Struct) (*structpb.Struct, error)

// FullMethod returns the gRPC path for a method.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// UnaryMethod adapts h to a grpc.MethodDesc, honouring server interceptors.
func UnaryMethod(service, method string, h Handler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return h(ctx, srv, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(service, method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(ctx, srv, req.(*structpb.Struct))
			})
		},
	}
}

// Invoke calls a unary method and converts an "error" field into a RemoteError.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, method string, req *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	if msg := String(out, ErrorField); msg != "" {
		return nil, &RemoteError{Method: method, Message: msg}
	}
	return out, nil
}

// Reply builds a response. A non-nil err is reported in the error field.
func Reply(fields map[string]*structpb.Value, err error) *structpb.Struct {
	if fields == nil {
		fields = map[string]*structpb.Value{}
	}
	if err != nil {
		fields[ErrorField] = structpb.NewStringValue(err.Error())
	}
	return &structpb.Struct{Fields: fields}
}

// IsRemote reports whether err came from the remote service rather than transport.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func Number(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

// VectorValue encodes an embedding as a list of numbers.
func VectorValue(v []float32) *structpb.Value {
	values := make([]*structpb.Value, len(v))
	for i, f := range v {
		values[i] = structpb.NewNumberValue(float64(f))
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// Vector decodes a list of numbers. Non-numeric entries are an error.
func Vector(s *structpb.Struct, key string) ([]float32, error) {
	list := s.GetFields()[key].GetListValue()
	out := make([]float32, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not a number", key, i)
		}
		out = append(out, float32(n.NumberValue))
	}
	return out, nil
}
