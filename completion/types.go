package completion

import (
	"context"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model        string
	Question     string
	SystemPrompt string
	// History is prior conversation, oldest first, sent between the system
	// prompt and the question.
	History     []Message
	Temperature float64
	MaxTokens   int
}

// Messages renders the request as a chat message list.
func (r *CompletionRequest) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	msgs = append(msgs, r.History...)
	return append(msgs, Message{Role: RoleUser, Content: r.Question})
}

type CompletionChunk struct {
	Content    string
	Error      error
	Done       bool
	TokenUsage int
}

// Accumulate drains ch, passing each piece of content to onContent, and
// returns the assembled text. It stops at the first chunk error, the first
// onContent error or ctx cancellation; the channel is drained in the
// background so the producer can exit.
func Accumulate(ctx context.Context, ch <-chan *CompletionChunk, onContent func(string) error) (string, error) {
	var sb strings.Builder
	defer func() {
		go func() {
			for range ch {
			}
		}()
	}()
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Error != nil {
				return sb.String(), chunk.Error
			}
			if chunk.Content != "" {
				sb.WriteString(chunk.Content)
				if onContent != nil {
					if err := onContent(chunk.Content); err != nil {
						return sb.String(), err
					}
				}
			}
			if chunk.Done {
				return sb.String(), nil
			}
		}
	}
}
