package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/cache"
	"rag_gateway/rpc"
)

const (
	serviceName = "rag_gateway.cache.CacheService"

	methodLookup = "Lookup"
	methodPut    = "Put"
	methodClear  = "Clear"
)

const (
	fieldPrompt     = "prompt"
	fieldSignature  = "signature"
	fieldResponse   = "response"
	fieldThreshold  = "similarity_threshold"
	fieldCandidates = "candidate_count"
	fieldTTLMinutes = "ttl_minutes"
	fieldFound      = "found"
	fieldID         = "id"
	fieldEmbedding  = "embedding"
	fieldCreatedAt  = "created_at"
	fieldCleared    = "cleared"
)

// ServiceDesc describes the remote cache engine.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*cache.Service)(nil),
	Methods: []grpc.MethodDesc{
		rpc.UnaryMethod(serviceName, methodLookup, func(ctx context.Context, srv any, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(*Server).lookup(ctx, req), nil
		}),
		rpc.UnaryMethod(serviceName, methodPut, func(ctx context.Context, srv any, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(*Server).put(ctx, req), nil
		}),
		rpc.UnaryMethod(serviceName, methodClear, func(ctx context.Context, srv any, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(*Server).clear(ctx, req), nil
		}),
	},
	Metadata: "cache.proto",
}
