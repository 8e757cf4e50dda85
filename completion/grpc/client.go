package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/completion"
	"rag_gateway/rpc"
)

type Client struct {
	conn *grpc.ClientConn
}

func NewClient(address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to completion service: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) GetStream(ctx context.Context, req *completion.CompletionRequest) (<-chan *completion.CompletionChunk, error) {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], rpc.FullMethod(serviceName, methodGet))
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	if err := stream.SendMsg(encodeRequest(req)); err != nil {
		return nil, fmt.Errorf("failed to send completion request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send: %w", err)
	}

	chunkChan := make(chan *completion.CompletionChunk)
	go func() {
		defer close(chunkChan)
		send := func(chunk *completion.CompletionChunk) bool {
			select {
			case chunkChan <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for {
			out := new(structpb.Struct)
			err := stream.RecvMsg(out)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				send(&completion.CompletionChunk{Error: fmt.Errorf("stream error: %w", err), Done: true})
				return
			}
			chunk := decodeChunk(out)
			if !send(chunk) || chunk.Done {
				return
			}
		}
	}()
	return chunkChan, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
