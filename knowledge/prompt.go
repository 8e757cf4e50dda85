package knowledge

import (
	"fmt"
	"strings"
)

const noDocuments = "No relevant documents found."

// BuildPrompt combines the question with the rendered conversation history
// and the retrieved passages into a single user prompt.
func BuildPrompt(question, history string, hits []Hit) string {
	var b strings.Builder
	b.WriteString("You are a documentation expert with access to the conversation history.\n")
	b.WriteString("Given the user query, the conversation history and the relevant documents below, give a helpful and accurate answer.\n\n")
	b.WriteString("CONVERSATION HISTORY:\n")
	b.WriteString(history)
	b.WriteString("\n\nRELEVANT DOCUMENTS:\n")
	b.WriteString(FormatHits(hits))
	b.WriteString("\n\nCURRENT USER QUERY: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer from the documents and the conversation. If the user asks about earlier questions, use the conversation history. ")
	b.WriteString("Refer to document ids and sources when relevant.")
	return b.String()
}

// FormatHits renders passages as numbered document blocks.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return noDocuments
	}
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("Document %d:\nID: %s\nSource: %s\nScore: %.4f\nContent: %s",
			i+1, h.ID, h.Source, h.Score, h.Content)
	}
	return strings.Join(blocks, "\n\n")
}
