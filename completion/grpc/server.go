package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/completion"
)

type Server struct {
	completionService completion.Service
}

func NewServer(completionService completion.Service) *Server {
	return &Server{
		completionService: completionService,
	}
}

func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&ServiceDesc, s)
}

// GetStream lets Server satisfy the registered handler type.
func (s *Server) GetStream(ctx context.Context, req *completion.CompletionRequest) (<-chan *completion.CompletionChunk, error) {
	return s.completionService.GetStream(ctx, req)
}

func (s *Server) getStream(stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	chunkChan, err := s.completionService.GetStream(stream.Context(), decodeRequest(in))
	if err != nil {
		return stream.SendMsg(encodeChunk(&completion.CompletionChunk{Error: err, Done: true}))
	}
	for chunk := range chunkChan {
		if err := stream.SendMsg(encodeChunk(chunk)); err != nil {
			return err
		}
	}
	return nil
}
