package factory

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-triage/internal/adapters/filter"
	"github.com/mikey/llm-email-triage/internal/config"
	"github.com/mikey/llm-email-triage/internal/core"
	"github.com/mikey/llm-email-triage/internal/ports"
)

// FilterFactory creates triage filters based on configuration
type FilterFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.TriageService
	out     io.Writer
}

// NewFilterFactory creates a new filter factory. Watcher reports go to out.
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, service *core.TriageService, out io.Writer) *FilterFactory {
	return &FilterFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
		out:     out,
	}
}

// CreateTriageFilter creates the filter named by server.filter_type
func (f *FilterFactory) CreateTriageFilter() (ports.TriageFilter, error) {
	filterType := f.cfg.GetString("server.filter_type")

	switch filterType {
	case "watch":
		watcherCfg := f.cfg.GetWatcher()
		return filter.NewMailboxWatcher(
			f.service,
			f.out,
			f.logger,
			watcherCfg.Interval,
			watcherCfg.Limit,
			watcherCfg.MaxPolls,
			watcherCfg.Verbose,
		), nil
	case "smtp":
		serverCfg := f.cfg.GetServer()
		return filter.NewSMTPFilter(f.service, f.logger, filter.SMTPOptions{
			ListenAddr:    serverCfg.ListenAddress,
			LabelHeader:   serverCfg.LabelHeader,
			ModelHeader:   serverCfg.ModelHeader,
			ErrorHeader:   serverCfg.ErrorHeader,
			RejectJunk:    serverCfg.RejectJunk,
			JunkPrefix:    serverCfg.SubjectPrefix,
			ModifySubject: serverCfg.ModifySubject,
			RelayHost:     serverCfg.RelayHost,
			RelayPort:     serverCfg.RelayPort,
			RelayEnabled:  serverCfg.RelayEnabled,
			Timeout:       serverCfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", filterType)
	}
}
