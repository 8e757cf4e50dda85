package completion

import "context"

// Service streams a chat completion. The returned channel is closed after a
// chunk with Done set, or when ctx is cancelled.
type Service interface {
	GetStream(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}
