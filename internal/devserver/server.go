// Package devserver serves the Lambda handler over plain HTTP for local
// development.
package devserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

const (
	maxBodyBytes      = 1 << 20
	correlationHeader = "X-Correlation-Id"
)

// ProxyHandler is satisfied by *handler.Handler.
type ProxyHandler interface {
	Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

// Server wraps the gin engine with graceful shutdown helpers.
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	allowOrigins    []string
	engine          *gin.Engine
	logger          *slog.Logger
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithAllowOrigins sets the CORS origins; "*" allows any. An empty list
// disables CORS handling.
func WithAllowOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowOrigins = append([]string(nil), origins...)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds the engine. Every route other than /healthz is forwarded to h
// as an API Gateway proxy event.
func New(h ProxyHandler, opts ...Option) (*Server, error) {
	if h == nil {
		return nil, errors.New("devserver: handler must not be nil")
	}
	s := &Server{
		addr:            ":8080",
		shutdownTimeout: 10 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))
	if len(s.allowOrigins) > 0 {
		engine.Use(cors.New(corsConfig(s.allowOrigins)))
	}
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	engine.NoRoute(proxy(h, s.logger))

	s.engine = engine
	return s, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", correlationHeader},
		ExposeHeaders: []string{correlationHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP listener and shuts down gracefully when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev server listening", "addr", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down dev server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func proxy(h ProxyHandler, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := toEvent(c.Request)
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": err.Error()})
			return
		}

		resp, err := h.Handle(c.Request.Context(), event)
		if err != nil {
			// API Gateway answers 502 when the integration itself fails.
			logger.ErrorContext(c.Request.Context(), "handler returned error", "path", event.Path, "err", err)
			c.JSON(http.StatusBadGateway, gin.H{"message": "Internal server error"})
			return
		}
		writeResponse(c, resp)
	}
}

func toEvent(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return events.APIGatewayProxyRequest{}, fmt.Errorf("devserver: read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return events.APIGatewayProxyRequest{}, fmt.Errorf("devserver: body exceeds %d bytes", maxBodyBytes)
	}

	event := events.APIGatewayProxyRequest{
		HTTPMethod:                      r.Method,
		Path:                            r.URL.Path,
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		RequestContext: events.APIGatewayProxyRequestContext{
			HTTPMethod: r.Method,
			Path:       r.URL.Path,
			Stage:      "local",
		},
	}
	for k, v := range r.Header {
		if len(v) == 0 {
			continue
		}
		event.Headers[k] = v[0]
		event.MultiValueHeaders[k] = append([]string(nil), v...)
	}
	for k, v := range r.URL.Query() {
		if len(v) == 0 {
			continue
		}
		event.QueryStringParameters[k] = v[0]
		event.MultiValueQueryStringParameters[k] = append([]string(nil), v...)
	}
	if utf8.Valid(body) {
		event.Body = string(body)
	} else {
		event.Body = base64.StdEncoding.EncodeToString(body)
		event.IsBase64Encoded = true
	}
	return event, nil
}

func writeResponse(c *gin.Context, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"message": "Internal server error"})
			return
		}
		body = decoded
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.Status(status)
	_, _ = c.Writer.Write(body)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
