package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/embedding"
	"rag_gateway/rpc"
)

type Server struct {
	embeddingService embedding.Service
}

func NewServer(embeddingService embedding.Service) *Server {
	return &Server{
		embeddingService: embeddingService,
	}
}

// Get lets Server satisfy the registered handler type.
func (s *Server) Get(ctx context.Context, text string) ([]float32, error) {
	return s.embeddingService.Get(ctx, text)
}

// Register attaches the service to a gRPC server.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&ServiceDesc, s)
}

func (s *Server) getEmbedding(ctx context.Context, req *structpb.Struct) *structpb.Struct {
	text := rpc.String(req, fieldText)
	if text == "" {
		return rpc.Reply(nil, errors.New("empty text"))
	}
	vec, err := s.embeddingService.Get(ctx, text)
	if err != nil {
		return rpc.Reply(nil, err)
	}
	return rpc.Reply(map[string]*structpb.Value{fieldEmbedding: rpc.VectorValue(vec)}, nil)
}
