package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/cache"
	"rag_gateway/rpc"
)

// Client implements cache.Service against a remote cache service.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache service: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Lookup(ctx context.Context, prompt, signature string, opts cache.LookupOptions) (*cache.Entry, error) {
	resp, err := c.call(ctx, methodLookup, map[string]*structpb.Value{
		fieldPrompt:     structpb.NewStringValue(prompt),
		fieldSignature:  structpb.NewStringValue(signature),
		fieldThreshold:  structpb.NewNumberValue(opts.SimilarityThreshold),
		fieldCandidates: structpb.NewNumberValue(float64(opts.CandidateCount)),
	})
	if err != nil {
		return nil, err
	}
	if !rpc.Bool(resp, fieldFound) {
		return nil, nil
	}
	vec, err := rpc.Vector(resp, fieldEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cache.ErrStore, err)
	}
	return &cache.Entry{
		ID:         rpc.String(resp, fieldID),
		Prompt:     rpc.String(resp, fieldPrompt),
		Signature:  rpc.String(resp, fieldSignature),
		Response:   rpc.String(resp, fieldResponse),
		Embedding:  vec,
		CreatedAt:  int64(rpc.Number(resp, fieldCreatedAt)),
		TTLMinutes: int(rpc.Number(resp, fieldTTLMinutes)),
	}, nil
}

func (c *Client) Put(ctx context.Context, prompt, signature, response string, ttlMinutes int) (string, error) {
	resp, err := c.call(ctx, methodPut, map[string]*structpb.Value{
		fieldPrompt:     structpb.NewStringValue(prompt),
		fieldSignature:  structpb.NewStringValue(signature),
		fieldResponse:   structpb.NewStringValue(response),
		fieldTTLMinutes: structpb.NewNumberValue(float64(ttlMinutes)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", cache.ErrCacheWrite, err)
	}
	return rpc.String(resp, fieldID), nil
}

func (c *Client) Clear(ctx context.Context, signature string) (int, error) {
	resp, err := c.call(ctx, methodClear, map[string]*structpb.Value{
		fieldSignature: structpb.NewStringValue(signature),
	})
	if err != nil {
		return 0, err
	}
	return int(rpc.Number(resp, fieldCleared)), nil
}

func (c *Client) call(ctx context.Context, method string, fields map[string]*structpb.Value) (*structpb.Struct, error) {
	resp, err := rpc.Invoke(ctx, c.conn, rpc.FullMethod(serviceName, method), &structpb.Struct{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("cache service %s: %w", method, err)
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
