package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

// replayChunkRunes is the size of each chunk when a cached answer is
// replayed as a stream.
const replayChunkRunes = 20

type chunkDelta struct {
	Content string `json:"content,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatStreamResponse is one OpenAI chat.completion.chunk event.
type ChatStreamResponse struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionChoice struct {
	Index        int               `json:"index"`
	Message      completionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// ChatCompletionResponse is the non-streaming OpenAI response body.
type ChatCompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

func newChatID() string {
	id := uuid.New()
	return "chatcmpl-" + base62.EncodeToString(id[:])
}

// sseWriter writes OpenAI-style chunk events. Headers are sent on first use.
type sseWriter struct {
	c       *gin.Context
	id      string
	model   string
	created int64
	started bool
}

func newSSEWriter(c *gin.Context, model string) *sseWriter {
	return &sseWriter{c: c, id: newChatID(), model: model, created: time.Now().Unix()}
}

func (w *sseWriter) start(source string) {
	if w.started {
		return
	}
	w.started = true
	h := w.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set(headerCacheSource, source)
	w.c.Status(http.StatusOK)
}

func (w *sseWriter) event(choice chunkChoice) error {
	data, err := json.Marshal(ChatStreamResponse{
		ID:      w.id,
		Object:  "chat.completion.chunk",
		Created: w.created,
		Model:   w.model,
		Choices: []chunkChoice{choice},
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

func (w *sseWriter) content(s string) error {
	return w.event(chunkChoice{Delta: chunkDelta{Content: s}})
}

// finish sends the stop event and the [DONE] marker.
func (w *sseWriter) finish() error {
	stop := "stop"
	if err := w.event(chunkChoice{FinishReason: &stop}); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w.c.Writer, "data: [DONE]\n\n"); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// replay streams a cached answer in fixed-size rune chunks.
func (w *sseWriter) replay(answer string) error {
	runes := []rune(answer)
	for i := 0; i < len(runes); i += replayChunkRunes {
		end := min(i+replayChunkRunes, len(runes))
		if err := w.content(string(runes[i:end])); err != nil {
			return err
		}
	}
	return w.finish()
}

func completionBody(model, answer string) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      newChatID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []completionChoice{{
			Message:      completionMessage{Role: "assistant", Content: answer},
			FinishReason: "stop",
		}},
	}
}
