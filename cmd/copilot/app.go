package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inspirepan/copilot"
	"github.com/inspirepan/copilot/datasource/grafana"
	"github.com/inspirepan/copilot/datasource/sqldb"
	"github.com/inspirepan/copilot/internal/config"
	"github.com/inspirepan/copilot/mcpclient"
	"github.com/inspirepan/copilot/providers/anthropic"
	"github.com/inspirepan/copilot/providers/chatcompletion"
	"github.com/inspirepan/copilot/providers/openrouter"
	"github.com/inspirepan/copilot/sqltools"
)

const appTitle = "SQL Copilot"

// app holds everything a command needs, built from the loaded config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  *sqltools.Catalog
	registry *copilot.Registry
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(providerFlag, modelFlag)
	if debugLogFlag != "" {
		cfg.DebugLog = debugLogFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: newLogger()}
	ds, err := a.openDatasource(ctx)
	if err != nil {
		return nil, err
	}

	opts := []copilot.RegistryOption{
		copilot.WithRegistryLogger(a.logger),
		copilot.WithEnabledCheck(a.llmEnabled),
	}
	if cfg.MCP.Grafana != "" {
		client := mcpclient.New("grafana", cfg.MCP.Grafana,
			mcpclient.WithVersion(Version),
			mcpclient.WithLogger(a.logger),
		)
		a.closers = append(a.closers, client.Close)
		opts = append(opts, copilot.WithRemote(client.Name(), client, cfg.MCP.AllowedTools...))
	}

	var local copilot.LocalToolSource
	if ds != nil {
		a.catalog = sqltools.New(ds, sqltools.WithLogger(a.logger))
		local = a.catalog
	}
	a.registry = copilot.NewRegistry(local, opts...)
	return a, nil
}

func (a *app) openDatasource(ctx context.Context) (sqltools.Datasource, error) {
	dc := a.cfg.Datasource
	switch dc.Kind {
	case "grafana":
		return grafana.New(grafana.Config{
			URL:     dc.Grafana.URL,
			Token:   dc.Grafana.Token,
			OrgID:   dc.Grafana.OrgID,
			UID:     dc.Grafana.UID,
			Name:    dc.Grafana.Name,
			Dialect: sqltools.Dialect(dc.Grafana.Dialect),
			Timeout: dc.Timeout,
		})
	case "sql":
		db, err := sqldb.Open(ctx, sqldb.Config{
			Dialect: sqltools.Dialect(dc.SQL.Dialect),
			DSN:     dc.SQL.DSN,
			Timeout: dc.Timeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown datasource kind %q", dc.Kind)
	}
}

// llmEnabled is the capability check: the LLM is usable once the selected
// provider has credentials.
func (a *app) llmEnabled(context.Context) (bool, error) {
	p := a.cfg.Active()
	if p == nil {
		return false, fmt.Errorf("unknown provider %q", a.cfg.Provider)
	}
	if p.APIKey == "" {
		a.logger.Warn("no API key configured", "provider", a.cfg.Provider)
		return false, nil
	}
	return true, nil
}

func (a *app) provider() (copilot.Provider, error) {
	p := a.cfg.Active()
	if p == nil {
		return nil, fmt.Errorf("unknown provider %q", a.cfg.Provider)
	}
	switch a.cfg.Provider {
	case "openai":
		opts := []chatcompletion.Option{chatcompletion.WithAPIKey(p.APIKey)}
		if p.BaseURL != "" {
			opts = append(opts, chatcompletion.WithBaseURL(p.BaseURL))
		}
		if p.MaxOutputTokens > 0 {
			opts = append(opts, chatcompletion.WithMaxOutputTokens(p.MaxOutputTokens))
		}
		if p.Temperature > 0 {
			opts = append(opts, chatcompletion.WithTemperature(p.Temperature))
		}
		if p.RequestTimeout > 0 {
			opts = append(opts, chatcompletion.WithRequestTimeout(p.RequestTimeout))
		}
		if a.cfg.DebugLog != "" {
			opts = append(opts, chatcompletion.WithDebug(a.cfg.DebugLog))
		}
		return chatcompletion.New(p.Model, opts...), nil
	case "openrouter":
		opts := []openrouter.Option{
			openrouter.WithAPIKey(p.APIKey),
			openrouter.WithAppTitle(appTitle),
		}
		if p.BaseURL != "" {
			opts = append(opts, openrouter.WithBaseURL(p.BaseURL))
		}
		if p.MaxOutputTokens > 0 {
			opts = append(opts, openrouter.WithMaxOutputTokens(p.MaxOutputTokens))
		}
		if p.Temperature > 0 {
			opts = append(opts, openrouter.WithTemperature(p.Temperature))
		}
		if p.RequestTimeout > 0 {
			opts = append(opts, openrouter.WithRequestTimeout(p.RequestTimeout))
		}
		if a.cfg.DebugLog != "" {
			opts = append(opts, openrouter.WithDebug(a.cfg.DebugLog))
		}
		return openrouter.New(p.Model, opts...), nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(p.APIKey)}
		if p.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.BaseURL))
		}
		if p.MaxOutputTokens > 0 {
			opts = append(opts, anthropic.WithMaxOutputTokens(p.MaxOutputTokens))
		}
		if p.Temperature > 0 {
			opts = append(opts, anthropic.WithTemperature(p.Temperature))
		}
		if p.RequestTimeout > 0 {
			opts = append(opts, anthropic.WithRequestTimeout(p.RequestTimeout))
		}
		if a.cfg.DebugLog != "" {
			opts = append(opts, anthropic.WithDebug(a.cfg.DebugLog))
		}
		return anthropic.New(p.Model, opts...), nil
	}
	return nil, fmt.Errorf("unknown provider %q", a.cfg.Provider)
}

func (a *app) conversation(observer copilot.Observer) (*copilot.Conversation, error) {
	p, err := a.provider()
	if err != nil {
		return nil, err
	}
	opts := []copilot.ConversationOption{
		copilot.WithMaxRounds(a.cfg.MaxRounds),
		copilot.WithLogger(a.logger),
		copilot.WithObserver(observer),
	}
	if a.cfg.SystemPrompt != "" {
		opts = append(opts, copilot.WithSystemPrompt(a.cfg.SystemPrompt))
	}
	return copilot.NewConversation(p, a.registry, opts...), nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
