package grpc

import (
	"google.golang.org/grpc"

	"rag_gateway/completion"
)

const (
	serviceName = "rag_gateway.completion.CompletionService"
	methodGet   = "GetStream"

	fieldModel        = "model"
	fieldQuestion     = "question"
	fieldSystemPrompt = "system_prompt"
	fieldHistory      = "history"
	fieldRole         = "role"
	fieldContent      = "content"
	fieldTemperature  = "temperature"
	fieldMaxTokens    = "max_tokens"
	fieldDone         = "done"
	fieldTokenUsage   = "token_usage"
)

// ServiceDesc describes the completion service: one request message, then a
// stream of {content, done, token_usage, error} chunks.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*completion.Service)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    methodGet,
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(*Server).getStream(stream)
			},
		},
	},
	Metadata: "completion.proto",
}
