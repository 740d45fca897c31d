package dataset

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/utils"
)

func TestPromptLabeler(t *testing.T) {
	msg := &core.Message{
		ID:      "M1",
		From:    []core.Address{{Name: "Alice", Email: "alice@example.com"}},
		Subject: "Invoice",
		Body:    strings.Repeat("b", 20),
	}

	t.Run("retries until valid", func(t *testing.T) {
		var out bytes.Buffer
		l := NewPromptLabeler(strings.NewReader("maybe\n  FYI \n"), &out, 10, utils.NewTextProcessor(nil))

		label, ok, err := l.Label(context.Background(), msg)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, core.LabelFYI, label)

		printed := out.String()
		assert.Contains(t, printed, "From: Alice <alice@example.com>")
		assert.Contains(t, printed, "Subject: Invoice")
		assert.Contains(t, printed, strings.Repeat("b", 10)+"...")
		assert.Contains(t, printed, "Enter label (inbox/fyi/junk or skip): ")
		assert.Contains(t, printed, "Invalid label. Please choose from: inbox, fyi, junk")
	})

	t.Run("skip", func(t *testing.T) {
		l := NewPromptLabeler(strings.NewReader("skip\n"), &bytes.Buffer{}, 0, utils.NewTextProcessor(nil))
		_, ok, err := l.Label(context.Background(), msg)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("quit", func(t *testing.T) {
		l := NewPromptLabeler(strings.NewReader("q\n"), &bytes.Buffer{}, 0, utils.NewTextProcessor(nil))
		_, _, err := l.Label(context.Background(), msg)
		assert.ErrorIs(t, err, ErrStop)
	})

	t.Run("end of input", func(t *testing.T) {
		l := NewPromptLabeler(strings.NewReader(""), &bytes.Buffer{}, 0, utils.NewTextProcessor(nil))
		_, _, err := l.Label(context.Background(), msg)
		assert.ErrorIs(t, err, ErrStop)
	})
}
