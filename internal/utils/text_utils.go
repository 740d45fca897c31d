package utils

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const truncationMarker = "\n[... Content truncated due to size limits ...]"

// TextProcessor provides utilities for processing text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextProcessor{
		logger: logger,
	}
}

// Truncate cuts text to at most maxChars characters.
// A non-positive maxChars means no limit.
func (tp *TextProcessor) Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	count := 0
	for i := range text {
		if count == maxChars {
			return text[:i]
		}
		count++
	}
	return text
}

// Preview returns the first maxChars characters followed by "..." when text is longer
func (tp *TextProcessor) Preview(text string, maxChars int) string {
	truncated := tp.Truncate(text, maxChars)
	if len(truncated) < len(text) {
		return truncated + "..."
	}
	return text
}

// TruncateText truncates text to maxChars characters and appends a marker
// so the model knows the content was cut
func (tp *TextProcessor) TruncateText(text string, maxChars int) string {
	truncated := tp.Truncate(text, maxChars)
	if len(truncated) == len(text) {
		return text
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_chars", maxChars))

	return truncated + truncationMarker
}

// SanitizeUTF8 drops invalid UTF-8 sequences
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	sanitized := strings.ToValidUTF8(text, "")

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// ProcessText sanitizes and truncates text in one operation
func (tp *TextProcessor) ProcessText(text string, maxChars int) string {
	return tp.TruncateText(tp.SanitizeUTF8(text), maxChars)
}
