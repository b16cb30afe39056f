// Package session keeps the conversation state of one chat page and drives
// the chat endpoint on the user's behalf.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mortgage-copilot/internal/domain"
	"mortgage-copilot/internal/workflow"
)

// FallbackMessage is appended when the chat endpoint cannot be reached.
const FallbackMessage = "I'm having trouble reaching the assistant service right now. Let's retry shortly."

var ErrEmptyMessage = errors.New("session: message must not be empty")

// Sender delivers a turn to the chat endpoint. *chatapi.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, in domain.ChatRequest) (domain.ChatResponse, error)
}

type Message struct {
	ID      string
	Role    string
	Content string
}

// State is a point-in-time copy of the conversation.
type State struct {
	Messages    []Message
	StageIndex  int
	Suggestions []string
	Pending     int
}

type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeFailed    Outcome = "failed"
)

// Turn reports how a send resolved. Err is set for failed turns.
type Turn struct {
	User    Message
	Reply   Message
	Outcome Outcome
	Err     error
}

// pendingTurn is a send whose user message is already in the history but
// whose response has not arrived.
type pendingTurn struct {
	user    Message
	request domain.ChatRequest
}

type Controller struct {
	catalog *workflow.Catalog
	sender  Sender
	logger  *slog.Logger

	mu          sync.Mutex
	messages    []Message
	stageIndex  int
	suggestions []string
	pending     int
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New starts a conversation on the first stage, opened by the catalog greeting.
func New(catalog *workflow.Catalog, sender Sender, opts ...Option) (*Controller, error) {
	if catalog == nil {
		return nil, errors.New("session: catalog must not be nil")
	}
	if sender == nil {
		return nil, errors.New("session: sender must not be nil")
	}
	c := &Controller{
		catalog: catalog,
		sender:  sender,
		logger:  slog.Default(),
		messages: []Message{
			{ID: newID(), Role: domain.RoleAssistant, Content: catalog.Greeting()},
		},
		stageIndex:  0,
		suggestions: catalog.Prompts(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send appends the user message, posts the full history and applies the
// response. Transport failures are absorbed into a fallback assistant message
// and reported through Turn.Err; only empty input returns an error.
func (c *Controller) Send(ctx context.Context, content string) (Turn, error) {
	p, err := c.begin(content)
	if err != nil {
		return Turn{}, err
	}

	resp, err := c.sender.Send(ctx, p.request)
	if err != nil {
		return c.fail(ctx, p, err), nil
	}
	return c.commit(p, resp), nil
}

// SelectSuggestion sends the suggestion text as if the user had typed it.
func (c *Controller) SelectSuggestion(ctx context.Context, suggestion string) (Turn, error) {
	return c.Send(ctx, suggestion)
}

// SelectStage jumps to a stage from the timeline without contacting the
// endpoint.
func (c *Controller) SelectStage(i int) error {
	if _, err := c.catalog.Stage(i); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stageIndex = i
	c.suggestions = c.catalog.Prompts(i)
	return nil
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Messages:    append([]Message(nil), c.messages...),
		StageIndex:  c.stageIndex,
		Suggestions: append([]string(nil), c.suggestions...),
		Pending:     c.pending,
	}
}

func (c *Controller) begin(content string) (pendingTurn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return pendingTurn{}, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	user := Message{ID: newID(), Role: domain.RoleUser, Content: content}
	c.messages = append(c.messages, user)
	c.pending++

	history := make([]domain.ChatMessage, len(c.messages))
	for i, m := range c.messages {
		history[i] = domain.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return pendingTurn{
		user:    user,
		request: domain.ChatRequest{Messages: history, StageIndex: c.stageIndex},
	}, nil
}

func (c *Controller) commit(p pendingTurn, resp domain.ChatResponse) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply := Message{ID: newID(), Role: domain.RoleAssistant, Content: resp.Message.Content}
	c.messages = append(c.messages, reply)
	c.pending--

	c.stageIndex = c.catalog.Clamp(resp.StageIndex)
	if len(resp.Suggestions) > 0 {
		c.suggestions = append([]string(nil), resp.Suggestions...)
	} else {
		c.suggestions = c.catalog.Prompts(c.stageIndex)
	}
	return Turn{User: p.user, Reply: reply, Outcome: OutcomeCommitted}
}

func (c *Controller) fail(ctx context.Context, p pendingTurn, err error) Turn {
	c.logger.WarnContext(ctx, "chat request failed", "err", err)

	c.mu.Lock()
	defer c.mu.Unlock()

	reply := Message{ID: newID(), Role: domain.RoleAssistant, Content: FallbackMessage}
	c.messages = append(c.messages, reply)
	c.pending--
	return Turn{User: p.user, Reply: reply, Outcome: OutcomeFailed, Err: err}
}

var newID = func() string {
	return uuid.NewString()
}
