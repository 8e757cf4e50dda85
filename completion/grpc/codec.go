package grpc

import (
	"errors"

	"google.golang.org/protobuf/types/known/structpb"

	"rag_gateway/completion"
	"rag_gateway/rpc"
)

func encodeRequest(req *completion.CompletionRequest) *structpb.Struct {
	history := make([]*structpb.Value, len(req.History))
	for i, m := range req.History {
		history[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			fieldRole:    structpb.NewStringValue(m.Role),
			fieldContent: structpb.NewStringValue(m.Content),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldModel:        structpb.NewStringValue(req.Model),
		fieldQuestion:     structpb.NewStringValue(req.Question),
		fieldSystemPrompt: structpb.NewStringValue(req.SystemPrompt),
		fieldHistory:      structpb.NewListValue(&structpb.ListValue{Values: history}),
		fieldTemperature:  structpb.NewNumberValue(req.Temperature),
		fieldMaxTokens:    structpb.NewNumberValue(float64(req.MaxTokens)),
	}}
}

func decodeRequest(s *structpb.Struct) *completion.CompletionRequest {
	req := &completion.CompletionRequest{
		Model:        rpc.String(s, fieldModel),
		Question:     rpc.String(s, fieldQuestion),
		SystemPrompt: rpc.String(s, fieldSystemPrompt),
		Temperature:  rpc.Number(s, fieldTemperature),
		MaxTokens:    int(rpc.Number(s, fieldMaxTokens)),
	}
	for _, v := range s.GetFields()[fieldHistory].GetListValue().GetValues() {
		m := v.GetStructValue()
		req.History = append(req.History, completion.Message{
			Role:    rpc.String(m, fieldRole),
			Content: rpc.String(m, fieldContent),
		})
	}
	return req
}

func encodeChunk(c *completion.CompletionChunk) *structpb.Struct {
	return rpc.Reply(map[string]*structpb.Value{
		fieldContent:    structpb.NewStringValue(c.Content),
		fieldDone:       structpb.NewBoolValue(c.Done),
		fieldTokenUsage: structpb.NewNumberValue(float64(c.TokenUsage)),
	}, c.Error)
}

func decodeChunk(s *structpb.Struct) *completion.CompletionChunk {
	c := &completion.CompletionChunk{
		Content:    rpc.String(s, fieldContent),
		Done:       rpc.Bool(s, fieldDone),
		TokenUsage: int(rpc.Number(s, fieldTokenUsage)),
	}
	if msg := rpc.String(s, rpc.ErrorField); msg != "" {
		c.Error = errors.New(msg)
	}
	return c
}
