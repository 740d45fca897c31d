package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/utils"
)

const defaultPreviewChars = 500

// PromptLabeler shows each message on out and reads a label from in
type PromptLabeler struct {
	in            *bufio.Scanner
	out           io.Writer
	previewChars  int
	textProcessor *utils.TextProcessor
}

// NewPromptLabeler creates an interactive labeler. previewChars <= 0 selects 500.
func NewPromptLabeler(in io.Reader, out io.Writer, previewChars int, textProcessor *utils.TextProcessor) *PromptLabeler {
	if previewChars <= 0 {
		previewChars = defaultPreviewChars
	}
	return &PromptLabeler{
		in:            bufio.NewScanner(in),
		out:           out,
		previewChars:  previewChars,
		textProcessor: textProcessor,
	}
}

// Label prints a preview of msg and prompts until a valid answer.
// "skip" skips the message; "quit" or end of input returns ErrStop.
func (p *PromptLabeler) Label(ctx context.Context, msg *core.Message) (core.Label, bool, error) {
	sender := msg.Sender()
	fmt.Fprintf(p.out, "\nFrom: %s <%s>\n", sender.Name, sender.Email)
	fmt.Fprintf(p.out, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(p.out, "\nPreview:\n%s\n", p.textProcessor.Preview(msg.Body, p.previewChars))

	choices := make([]string, len(core.Labels))
	for i, l := range core.Labels {
		choices[i] = string(l)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		fmt.Fprintf(p.out, "\nEnter label (%s or skip): ", strings.Join(choices, "/"))
		if !p.in.Scan() {
			if err := p.in.Err(); err != nil {
				return "", false, fmt.Errorf("reading label: %w", err)
			}
			return "", false, ErrStop
		}

		answer := core.NormalizeLabel(p.in.Text())
		switch answer {
		case "skip", "s":
			return "", false, nil
		case "quit", "q":
			return "", false, ErrStop
		}

		if label, ok := core.ParseLabel(answer); ok {
			return label, true, nil
		}
		fmt.Fprintf(p.out, "Invalid label. Please choose from: %s\n", strings.Join(choices, ", "))
	}
}
