package factory

import (
	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/credential"
)

// resolveSecret returns the configured value, falling back to the OS keyring.
// Keyring failures are logged and treated as a missing secret.
func resolveSecret(value, key string, logger *zap.Logger) string {
	secret, err := credential.Resolve(value, key)
	if err != nil {
		logger.Warn("Keyring lookup failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return secret
}
