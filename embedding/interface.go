package embedding

import "context"

//go:generate mockgen -destination=mocks/service.go -package=mocks rag_gateway/embedding Service

// Service turns text into a fixed-length vector.
type Service interface {
	Get(ctx context.Context, text string) ([]float32, error)
}
