package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/adapters/jmap"
	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/credential"
)

// SourceFactory creates the mail source
type SourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSourceFactory creates a new mail source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailSource authenticates against the JMAP session endpoint.
// The token falls back to the OS keyring when not configured.
func (f *SourceFactory) CreateMailSource(ctx context.Context) (*jmap.Client, error) {
	jmapCfg := f.cfg.GetJMAP()

	token := resolveSecret(jmapCfg.Token, credential.JMAPTokenKey, f.logger)
	if token == "" {
		return nil, fmt.Errorf("JMAP API token is required (set jmap.token, FASTMAIL_API_TOKEN, or store %q in the keyring)", credential.JMAPTokenKey)
	}

	return jmap.NewClient(ctx, jmap.Options{
		SessionURL: jmapCfg.SessionURL,
		APIURL:     jmapCfg.APIURL,
		Token:      token,
		Timeout:    jmapCfg.Timeout,
		BodyParts:  jmapCfg.BodyParts,
	}, f.logger)
}
