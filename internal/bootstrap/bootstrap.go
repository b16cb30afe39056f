// Package bootstrap wires configuration, AWS clients and the chat playbook
// into a ready-to-serve handler for both entry points.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"mortgage-copilot/handler"
	"mortgage-copilot/internal/assistant"
	"mortgage-copilot/internal/config"
	"mortgage-copilot/internal/integrations/paramstore"
	"mortgage-copilot/internal/repository"
	"mortgage-copilot/internal/usecase"
	"mortgage-copilot/internal/workflow"
)

const (
	workflowParam = "workflow"
	rulesParam    = "rules"
)

// Deps are the optional AWS-backed collaborators. Nil fields disable the
// feature.
type Deps struct {
	Params  paramstore.Getter
	Journal usecase.Journal
}

// NewLogger returns a JSON slog logger writing to w at the given level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// Build loads the AWS config only when a feature needs it, opens the local
// journal when configured, then assembles the handler.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*handler.Handler, error) {
	var deps Deps
	if cfg.NeedsAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
		}
		if cfg.ParamPrefix != "" {
			params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, fmt.Errorf("bootstrap: create SSM client: %w", err)
			}
			deps.Params = params
		}
		if cfg.JournalTable != "" {
			journal, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.JournalTable, cfg.JournalTTL)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: create journal client: %w", err)
			}
			deps.Journal = journal
		}
	}
	if deps.Journal == nil && cfg.JournalSQLitePath != "" {
		journal, err := repository.OpenSQLite(cfg.JournalSQLitePath, cfg.JournalTTL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open sqlite journal: %w", err)
		}
		if removed, err := journal.Prune(ctx, time.Now()); err != nil {
			logger.WarnContext(ctx, "failed to prune sqlite journal", "err", err)
		} else if removed > 0 {
			logger.InfoContext(ctx, "pruned expired journal turns", "removed", removed)
		}
		deps.Journal = journal
	}
	return NewHandler(ctx, cfg, deps, logger)
}

func NewHandler(ctx context.Context, cfg *config.Config, deps Deps, logger *slog.Logger) (*handler.Handler, error) {
	catalog, rules, err := LoadPlaybook(ctx, deps.Params, cfg.ParamPrefix, logger)
	if err != nil {
		return nil, err
	}

	responder, err := assistant.NewResponder(catalog, rules)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create responder: %w", err)
	}

	opts := []usecase.Option{usecase.WithLogger(logger)}
	if deps.Journal != nil {
		opts = append(opts, usecase.WithJournal(deps.Journal))
		logger.InfoContext(ctx, "turn journal enabled", "table", cfg.JournalTable, "sqlite", cfg.JournalSQLitePath)
	}
	svc, err := usecase.NewChatService(catalog, responder, cfg.MaxHistoryMessages, opts...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create chat service: %w", err)
	}

	h, err := handler.NewHandler(svc, handler.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create handler: %w", err)
	}
	return h, nil
}

// LoadPlaybook returns the stage catalog and reply rules. Parameters found
// under prefix replace the built-in ones; a parameter that exists but does
// not parse is an error.
func LoadPlaybook(ctx context.Context, params paramstore.Getter, prefix string, logger *slog.Logger) (*workflow.Catalog, assistant.Table, error) {
	catalog := workflow.Default()
	rules := assistant.DefaultRules()
	if params == nil || prefix == "" {
		return catalog, rules, nil
	}

	name := paramstore.Join(prefix, workflowParam)
	raw, ok, err := params.LookupParameter(ctx, name)
	if err != nil {
		return nil, assistant.Table{}, fmt.Errorf("bootstrap: load workflow: %w", err)
	}
	if ok {
		if catalog, err = workflow.Parse([]byte(raw)); err != nil {
			return nil, assistant.Table{}, fmt.Errorf("bootstrap: %s: %w", name, err)
		}
		logger.InfoContext(ctx, "workflow loaded from parameter store", "param", name, "stages", catalog.Len())
	}

	name = paramstore.Join(prefix, rulesParam)
	raw, ok, err = params.LookupParameter(ctx, name)
	if err != nil {
		return nil, assistant.Table{}, fmt.Errorf("bootstrap: load rules: %w", err)
	}
	if ok {
		if rules, err = assistant.ParseRules([]byte(raw)); err != nil {
			return nil, assistant.Table{}, fmt.Errorf("bootstrap: %s: %w", name, err)
		}
		logger.InfoContext(ctx, "rules loaded from parameter store", "param", name, "rules", len(rules.Rules))
	}
	return catalog, rules, nil
}
