package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/cache"
	"rag_gateway/rpc"
)

// Server exposes a cache.Service over gRPC.
type Server struct {
	cacheService cache.Service
}

func NewServer(cacheService cache.Service) *Server {
	return &Server{
		cacheService: cacheService,
	}
}

func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&ServiceDesc, s)
}

// The methods below let Server satisfy the registered handler type.

func (s *Server) Lookup(ctx context.Context, prompt, signature string, opts cache.LookupOptions) (*cache.Entry, error) {
	return s.cacheService.Lookup(ctx, prompt, signature, opts)
}

func (s *Server) Put(ctx context.Context, prompt, signature, response string, ttlMinutes int) (string, error) {
	return s.cacheService.Put(ctx, prompt, signature, response, ttlMinutes)
}

func (s *Server) Clear(ctx context.Context, signature string) (int, error) {
	return s.cacheService.Clear(ctx, signature)
}

func (s *Server) lookup(ctx context.Context, req *structpb.Struct) *structpb.Struct {
	entry, err := s.cacheService.Lookup(ctx, rpc.String(req, fieldPrompt), rpc.String(req, fieldSignature), cache.LookupOptions{
		SimilarityThreshold: rpc.Number(req, fieldThreshold),
		CandidateCount:      int(rpc.Number(req, fieldCandidates)),
	})
	if err != nil {
		return rpc.Reply(nil, err)
	}
	if entry == nil {
		return rpc.Reply(map[string]*structpb.Value{fieldFound: structpb.NewBoolValue(false)}, nil)
	}
	return rpc.Reply(map[string]*structpb.Value{
		fieldFound:      structpb.NewBoolValue(true),
		fieldID:         structpb.NewStringValue(entry.ID),
		fieldPrompt:     structpb.NewStringValue(entry.Prompt),
		fieldSignature:  structpb.NewStringValue(entry.Signature),
		fieldResponse:   structpb.NewStringValue(entry.Response),
		fieldEmbedding:  rpc.VectorValue(entry.Embedding),
		fieldCreatedAt:  structpb.NewNumberValue(float64(entry.CreatedAt)),
		fieldTTLMinutes: structpb.NewNumberValue(float64(entry.TTLMinutes)),
	}, nil)
}

func (s *Server) put(ctx context.Context, req *structpb.Struct) *structpb.Struct {
	id, err := s.cacheService.Put(ctx,
		rpc.String(req, fieldPrompt),
		rpc.String(req, fieldSignature),
		rpc.String(req, fieldResponse),
		int(rpc.Number(req, fieldTTLMinutes)),
	)
	if err != nil {
		return rpc.Reply(nil, err)
	}
	return rpc.Reply(map[string]*structpb.Value{fieldID: structpb.NewStringValue(id)}, nil)
}

func (s *Server) clear(ctx context.Context, req *structpb.Struct) *structpb.Struct {
	n, err := s.cacheService.Clear(ctx, rpc.String(req, fieldSignature))
	if err != nil {
		return rpc.Reply(nil, err)
	}
	return rpc.Reply(map[string]*structpb.Value{fieldCleared: structpb.NewNumberValue(float64(n))}, nil)
}
