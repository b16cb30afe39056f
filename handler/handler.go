package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"mortgage-copilot/internal/domain"
	"mortgage-copilot/internal/usecase"
	"mortgage-copilot/internal/web"
)

const correlationHeader = "X-Correlation-Id"

type UseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Workflow(ctx context.Context) usecase.WorkflowOutput
}

type Handler struct {
	uc     UseCase
	logger *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type stagesResponse struct {
	Greeting string         `json:"greeting"`
	Stages   []domain.Stage `json:"stages"`
}

// rawChatRequest defers decoding of each field so a bad field falls back to
// its default instead of rejecting the whole body.
type rawChatRequest struct {
	Messages   json.RawMessage `json:"messages"`
	StageIndex json.RawMessage `json:"stageIndex"`
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(uc UseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{uc: uc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle serves API Gateway proxy events for the chat page and its API.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newUUID()
	}

	defer func() {
		if r := recover(); r != nil {
			h.logger.ErrorContext(ctx, "panic while handling request", "correlation_id", correlationID, "panic", r)
			resp = errorJSON(correlationID, usecase.NewError(usecase.ErrorInternal, "panic", nil))
			err = nil
		}
	}()

	method := strings.ToUpper(event.HTTPMethod)
	switch normalizePath(event.Path) {
	case "/api/chat":
		if method != http.MethodPost {
			return methodNotAllowed(correlationID, http.MethodPost), nil
		}
		return h.chat(ctx, correlationID, event), nil
	case "/api/stages":
		if method != http.MethodGet {
			return methodNotAllowed(correlationID, http.MethodGet), nil
		}
		out := h.uc.Workflow(ctx)
		return jsonResponse(http.StatusOK, correlationID, stagesResponse{Greeting: out.Greeting, Stages: out.Stages}), nil
	case "/", "/index.html":
		if method != http.MethodGet {
			return methodNotAllowed(correlationID, http.MethodGet), nil
		}
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers: map[string]string{
				"Content-Type":    "text/html; charset=utf-8",
				correlationHeader: correlationID,
			},
			Body: web.Page(),
		}, nil
	default:
		return errorJSON(correlationID, usecase.NewError(usecase.ErrorNotFound, "unknown_route", nil)), nil
	}
}

func (h *Handler) chat(ctx context.Context, correlationID string, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	req := decodeChatRequest(requestBody(event))

	out, err := h.uc.Chat(ctx, usecase.ChatInput{
		Messages:      req.Messages,
		StageIndex:    req.StageIndex,
		CorrelationID: correlationID,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "chat request failed", "correlation_id", correlationID, "err", err)
		return errorJSON(correlationID, err)
	}

	return jsonResponse(http.StatusOK, correlationID, domain.ChatResponse{
		Message:     domain.ChatMessage{Role: domain.RoleAssistant, Content: out.Reply},
		StageIndex:  out.StageIndex,
		Suggestions: out.Suggestions,
	})
}

func requestBody(event events.APIGatewayProxyRequest) []byte {
	if !event.IsBase64Encoded {
		return []byte(event.Body)
	}
	raw, err := base64.StdEncoding.DecodeString(event.Body)
	if err != nil {
		return nil
	}
	return raw
}

// decodeChatRequest never fails: missing or malformed fields take their
// defaults, an empty history and stage 0.
func decodeChatRequest(body []byte) domain.ChatRequest {
	var req domain.ChatRequest
	var raw rawChatRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return req
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw.Messages, &items); err == nil {
		for _, item := range items {
			var m domain.ChatMessage
			if err := json.Unmarshal(item, &m); err != nil {
				continue
			}
			if strings.TrimSpace(m.Role) == "" {
				continue
			}
			req.Messages = append(req.Messages, m)
		}
	}

	var stage float64
	if err := json.Unmarshal(raw.StageIndex, &stage); err == nil {
		req.StageIndex = stageFromNumber(stage)
	}
	return req
}

// stageFromNumber truncates toward zero and saturates to the int32 range;
// the responder clamps to the catalog afterwards.
func stageFromNumber(v float64) int {
	switch {
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	default:
		return int(v)
	}
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func errorJSON(correlationID string, err error) events.APIGatewayProxyResponse {
	code := usecase.CodeOf(err)
	return jsonResponse(code.Status(), correlationID, errorResponse{Error: string(code)})
}

func methodNotAllowed(correlationID, allow string) events.APIGatewayProxyResponse {
	resp := errorJSON(correlationID, usecase.NewError(usecase.ErrorMethodNotAllowed, "method_not_allowed", nil))
	resp.Headers["Allow"] = allow
	return resp
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			"Cache-Control":   "no-store",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
