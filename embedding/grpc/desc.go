package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/embedding"
	"rag_gateway/rpc"
)

const (
	serviceName    = "rag_gateway.embedding.EmbeddingService"
	getEmbedding   = "GetEmbedding"
	fieldText      = "text"
	fieldEmbedding = "embedding"
)

// ServiceDesc describes the embedding service. Requests carry {text};
// responses carry {embedding} or {error}.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*embedding.Service)(nil),
	Methods: []grpc.MethodDesc{
		rpc.UnaryMethod(serviceName, getEmbedding, func(ctx context.Context, srv any, req *structpb.Struct) (*structpb.Struct, error) {
			return srv.(*Server).getEmbedding(ctx, req), nil
		}),
	},
	Metadata: "embedding.proto",
}
