package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/utils"
)

const promptDelimiter = "The email to label is below."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type conversation struct {
	Messages []chatMessage `json:"messages"`
}

// SystemPrompt returns the triage policy of prompt without its trailing message delimiter
func SystemPrompt(prompt string) string {
	if before, _, found := strings.Cut(prompt, promptDelimiter); found {
		prompt = before
	}
	return strings.TrimSpace(prompt)
}

// Exporter writes labeled examples as chat fine-tuning conversations, one JSON object per line
type Exporter struct {
	systemPrompt  string
	maxBodyChars  int
	textProcessor *utils.TextProcessor
}

// NewExporter creates an exporter. Bodies are cut to maxBodyChars characters.
func NewExporter(prompt string, maxBodyChars int, textProcessor *utils.TextProcessor) *Exporter {
	return &Exporter{
		systemPrompt:  SystemPrompt(prompt),
		maxBodyChars:  maxBodyChars,
		textProcessor: textProcessor,
	}
}

// Export writes examples to w and returns how many were written.
// Examples whose label is outside the label set are left out.
func (e *Exporter) Export(ctx context.Context, w io.Writer, examples []core.LabeledExample) (int, error) {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	written := 0
	for _, ex := range examples {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		label, ok := core.ParseLabel(ex.Label)
		if !ok {
			continue
		}

		content := core.FormatContent(
			core.Address{Name: ex.SenderName, Email: ex.SenderEmail},
			ex.Subject,
			e.textProcessor.Truncate(ex.Body, e.maxBodyChars),
		)

		err := enc.Encode(conversation{Messages: []chatMessage{
			{Role: "system", Content: e.systemPrompt},
			{Role: "user", Content: "---\n" + content},
			{Role: "assistant", Content: string(label)},
		}})
		if err != nil {
			return written, fmt.Errorf("encoding example %s: %w", ex.MessageID, err)
		}
		written++
	}

	if err := buf.Flush(); err != nil {
		return written, fmt.Errorf("writing fine-tune data: %w", err)
	}
	return written, nil
}
