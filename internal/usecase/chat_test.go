package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mortgage-copilot/internal/assistant"
	"mortgage-copilot/internal/domain"
	"mortgage-copilot/internal/workflow"
)

type stubResponder struct {
	out         assistant.Reply
	err         error
	gotHistory  []domain.ChatMessage
	gotStage    int
	invocations int
}

func (s *stubResponder) Respond(history []domain.ChatMessage, stageIndex int) (assistant.Reply, error) {
	s.invocations++
	s.gotHistory = history
	s.gotStage = stageIndex
	return s.out, s.err
}

type mockJournal struct {
	records []domain.TurnRecord
	err     error
}

func (m *mockJournal) RecordTurn(_ context.Context, rec domain.TurnRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRealService(t *testing.T, opts ...Option) *ChatService {
	t.Helper()
	catalog := workflow.Default()
	r, err := assistant.NewResponder(catalog, assistant.DefaultRules())
	require.NoError(t, err)
	svc, err := NewChatService(catalog, r, 50, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return svc
}

func expectChatError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	_, err := NewChatService(nil, &stubResponder{}, 10)
	require.Error(t, err)

	_, err = NewChatService(workflow.Default(), nil, 10)
	require.Error(t, err)

	svc, err := NewChatService(workflow.Default(), &stubResponder{}, 0)
	require.NoError(t, err)
	require.Equal(t, defaultMaxHistory, svc.maxHistory)
}

func TestChat_HappyPath_Advances(t *testing.T) {
	svc := newRealService(t)
	catalog := workflow.Default()

	out, err := svc.Chat(context.Background(), ChatInput{
		Messages:   []domain.ChatMessage{{Role: domain.RoleUser, Content: "Summarize the intake and move to documents"}},
		StageIndex: 0,
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.StageIndex)
	require.Equal(t, "intake.complete", out.RuleID)
	require.Equal(t, catalog.Prompts(1), out.Suggestions)
	require.NotEmpty(t, out.Reply)
}

func TestChat_EmptyInput_DefaultGreeting(t *testing.T) {
	svc := newRealService(t)

	out, err := svc.Chat(context.Background(), ChatInput{})
	require.NoError(t, err)
	require.Equal(t, 0, out.StageIndex)
	require.Equal(t, assistant.RuleGreeting, out.RuleID)
	require.NotEmpty(t, out.Reply)
}

func TestChat_TrimsHistoryToWindow(t *testing.T) {
	stub := &stubResponder{out: assistant.Reply{Text: "ok", StageIndex: 0, Suggestions: []string{"a"}}}
	svc, err := NewChatService(workflow.Default(), stub, 2, WithLogger(quietLogger()))
	require.NoError(t, err)

	msgs := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "one"},
		{Role: domain.RoleAssistant, Content: "two"},
		{Role: domain.RoleUser, Content: "three"},
	}
	_, err = svc.Chat(context.Background(), ChatInput{Messages: msgs, StageIndex: 4})
	require.NoError(t, err)
	require.Len(t, stub.gotHistory, 2)
	require.Equal(t, "two", stub.gotHistory[0].Content)
	require.Equal(t, "three", stub.gotHistory[1].Content)
	require.Equal(t, 4, stub.gotStage)
}

func TestChat_EmptySuggestions_DefaultToStagePrompts(t *testing.T) {
	stub := &stubResponder{out: assistant.Reply{Text: "ok", StageIndex: 2}}
	svc, err := NewChatService(workflow.Default(), stub, 10, WithLogger(quietLogger()))
	require.NoError(t, err)

	out, err := svc.Chat(context.Background(), ChatInput{StageIndex: 2})
	require.NoError(t, err)
	require.Equal(t, workflow.Default().Prompts(2), out.Suggestions)
}

func TestChat_ResponderErrors(t *testing.T) {
	svc, err := NewChatService(workflow.Default(), &stubResponder{err: errors.New("template exploded")}, 10, WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), ChatInput{})
	expectChatError(t, err, ErrorInternal, "responder_error")
	require.ErrorContains(t, err, "template exploded")

	svc, err = NewChatService(workflow.Default(), &stubResponder{out: assistant.Reply{StageIndex: 99}}, 10, WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), ChatInput{})
	expectChatError(t, err, ErrorInternal, "responder_stage_out_of_range")
	require.ErrorIs(t, err, workflow.ErrOutOfRange)
}

func TestChat_JournalRecordsTurn(t *testing.T) {
	fixed := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = prev })

	journal := &mockJournal{}
	svc := newRealService(t, WithJournal(journal))

	_, err := svc.Chat(context.Background(), ChatInput{
		Messages:      []domain.ChatMessage{{Role: domain.RoleUser, Content: "Issue the pre-approval brief"}},
		StageIndex:    2,
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	require.Len(t, journal.records, 1)
	require.Equal(t, domain.TurnRecord{
		CorrelationID: "corr-1",
		FromStage:     "preapproval",
		ToStage:       "processing",
		RuleID:        "preapproval.issue",
		Advanced:      true,
		MessageCount:  1,
		CreatedAt:     fixed,
	}, journal.records[0])
}

func TestChat_JournalFailureDoesNotFailTurn(t *testing.T) {
	journal := &mockJournal{err: errors.New("dynamodb down")}
	svc := newRealService(t, WithJournal(journal))

	out, err := svc.Chat(context.Background(), ChatInput{StageIndex: -3})
	require.NoError(t, err)
	require.Equal(t, 0, out.StageIndex)
	require.Len(t, journal.records, 1)
	require.Equal(t, "intake", journal.records[0].FromStage)
	require.False(t, journal.records[0].Advanced)
}

func TestWorkflow_ReturnsCatalog(t *testing.T) {
	svc := newRealService(t)
	out := svc.Workflow(context.Background())
	require.Equal(t, workflow.Default().Greeting(), out.Greeting)
	require.Len(t, out.Stages, 5)
	require.Equal(t, "intake", out.Stages[0].ID)
}
