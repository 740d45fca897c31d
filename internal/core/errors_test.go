package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusError_Unwrap(t *testing.T) {
	assert.ErrorIs(t, &StatusError{StatusCode: 401}, ErrUnavailable)
	assert.ErrorIs(t, &StatusError{StatusCode: 404}, ErrUnavailable)
	assert.ErrorIs(t, &StatusError{StatusCode: 500}, ErrTransport)
	assert.ErrorIs(t, &StatusError{StatusCode: 429}, ErrTransport)
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(nil))
	assert.True(t, IsRecoverable(errors.New("boom")))
	assert.True(t, IsRecoverable(fmt.Errorf("wrap: %w", ErrShape)))
	assert.False(t, IsRecoverable(&StatusError{StatusCode: 403}))
	assert.False(t, IsRecoverable(&StageError{Stage: "classify", Err: context.Canceled}))
}

func TestParseLabel(t *testing.T) {
	l, ok := ParseLabel(" INBOX ")
	assert.True(t, ok)
	assert.Equal(t, LabelInbox, l)

	l, ok = ParseLabel("Promotions")
	assert.False(t, ok)
	assert.Equal(t, Label("promotions"), l)
}

func TestStageError_Message(t *testing.T) {
	err := &StageError{Stage: "get", MessageID: "M1", Err: ErrShape}
	assert.Equal(t, "get (message M1): unexpected response shape", err.Error())
	assert.Equal(t, "query: unexpected response shape", (&StageError{Stage: "query", Err: ErrShape}).Error())
}
