package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/rpc"
)

// Client implements embedding.Service against a remote embedding service.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to embedding service: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Get(ctx context.Context, text string) ([]float32, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldText: structpb.NewStringValue(text),
	}}
	resp, err := rpc.Invoke(ctx, c.conn, rpc.FullMethod(serviceName, getEmbedding), req)
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	vec, err := rpc.Vector(resp, fieldEmbedding)
	if err != nil {
		return nil, fmt.Errorf("malformed embedding response: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return vec, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
