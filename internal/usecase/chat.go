package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mortgage-copilot/internal/assistant"
	"mortgage-copilot/internal/domain"
	"mortgage-copilot/internal/workflow"
)

const defaultMaxHistory = 50

type Responder interface {
	Respond(history []domain.ChatMessage, stageIndex int) (assistant.Reply, error)
}

// Journal records stage decisions. It never influences the reply.
type Journal interface {
	RecordTurn(ctx context.Context, rec domain.TurnRecord) error
}

type ChatService struct {
	catalog    *workflow.Catalog
	responder  Responder
	journal    Journal
	maxHistory int
	logger     *slog.Logger
}

type ChatInput struct {
	Messages      []domain.ChatMessage
	StageIndex    int
	CorrelationID string
}

type ChatOutput struct {
	Reply       string
	StageIndex  int
	Suggestions []string
	RuleID      string
}

type WorkflowOutput struct {
	Greeting string
	Stages   []domain.Stage
}

type Option func(*ChatService)

// WithJournal enables turn journaling. A nil journal leaves it disabled.
func WithJournal(j Journal) Option {
	return func(s *ChatService) {
		s.journal = j
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ChatService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewChatService(catalog *workflow.Catalog, responder Responder, maxHistory int, opts ...Option) (*ChatService, error) {
	if catalog == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}
	if responder == nil {
		return nil, errors.New("usecase: responder must not be nil")
	}
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	s := &ChatService{
		catalog:    catalog,
		responder:  responder,
		maxHistory: maxHistory,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	history := in.Messages
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	from := s.catalog.Clamp(in.StageIndex)

	reply, err := s.responder.Respond(history, in.StageIndex)
	if err != nil {
		return ChatOutput{}, NewError(ErrorInternal, "responder_error", err)
	}
	to, err := s.catalog.Stage(reply.StageIndex)
	if err != nil {
		return ChatOutput{}, NewError(ErrorInternal, "responder_stage_out_of_range", err)
	}
	suggestions := reply.Suggestions
	if len(suggestions) == 0 {
		suggestions = s.catalog.Prompts(reply.StageIndex)
	}

	s.logger.InfoContext(ctx, "chat turn",
		"correlation_id", in.CorrelationID,
		"from_stage", from,
		"to_stage", reply.StageIndex,
		"rule", reply.RuleID,
		"messages", len(in.Messages),
	)

	if s.journal != nil {
		fromStage, _ := s.catalog.Stage(from)
		rec := domain.TurnRecord{
			CorrelationID: in.CorrelationID,
			FromStage:     fromStage.ID,
			ToStage:       to.ID,
			RuleID:        reply.RuleID,
			Advanced:      reply.StageIndex != from,
			MessageCount:  len(in.Messages),
			CreatedAt:     now(),
		}
		if err := s.journal.RecordTurn(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "failed to journal chat turn", "correlation_id", in.CorrelationID, "err", err)
		}
	}

	return ChatOutput{
		Reply:       reply.Text,
		StageIndex:  reply.StageIndex,
		Suggestions: suggestions,
		RuleID:      reply.RuleID,
	}, nil
}

// Workflow returns the greeting and stage list rendered by the timeline.
func (s *ChatService) Workflow(_ context.Context) WorkflowOutput {
	return WorkflowOutput{
		Greeting: s.catalog.Greeting(),
		Stages:   s.catalog.Stages(),
	}
}

var now = func() time.Time {
	return time.Now().UTC()
}
