package qdrant

import (
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"rag_gateway/vectorstore"
)

// Payload keys stored next to each point. The full document lives in the
// doc store; the payload only carries what filters need.
const (
	fieldSignature = "signature"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
)

func pointPayload(doc vectorstore.Document, expiresAt int64) map[string]*qdrant.Value {
	return qdrant.NewValueMap(map[string]any{
		fieldSignature: doc.Signature,
		fieldCreatedAt: doc.CreatedAt,
		fieldExpiresAt: expiresAt,
	})
}

func liveFilter(nowMillis int64) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewRange(fieldExpiresAt, &qdrant.Range{Gt: qdrant.PtrOf(float64(nowMillis))}),
		},
	}
}

func expiredFilter(nowMillis int64) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewRange(fieldExpiresAt, &qdrant.Range{Lte: qdrant.PtrOf(float64(nowMillis))}),
		},
	}
}

func queryFilter(f vectorstore.Filter, nowMillis int64) *qdrant.Filter {
	filter := liveFilter(nowMillis)
	if f.Signature != "" {
		filter.Must = append(filter.Must, qdrant.NewMatch(fieldSignature, f.Signature))
	}
	return filter
}

func idString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
