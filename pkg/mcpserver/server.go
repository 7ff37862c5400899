package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/memoranda/internal/metrics"
	"github.com/harun/memoranda/internal/tracing"
	"github.com/harun/memoranda/pkg/memo"
	"github.com/harun/memoranda/pkg/search"
	"github.com/harun/memoranda/pkg/store"
)

// maxMessageSize bounds one request line. A maximal memo escaped as JSON
// fits comfortably.
const maxMessageSize = 16 * 1024 * 1024

// Service is the store surface the server exposes. *store.Store
// implements it.
type Service interface {
	Create(ctx context.Context, title, content string) (*memo.Memo, error)
	Get(ctx context.Context, id memo.ID) (*memo.Memo, error)
	Update(ctx context.Context, id memo.ID, content string) (*memo.Memo, error)
	Delete(ctx context.Context, id memo.ID) error
	List(ctx context.Context) ([]*memo.Memo, error)
	Search(ctx context.Context, query string) ([]search.Result, error)
	GetAllContext(ctx context.Context) (string, error)
}

var _ Service = (*store.Store)(nil)

// Config configures a Server.
type Config struct {
	Name    string
	Version string
	Service Service
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Server answers MCP requests for one client.
type Server struct {
	name    string
	version string
	service Service
	logger  zerolog.Logger
	metrics *metrics.Metrics
	schemas map[Operation]*gojsonschema.Schema

	initialized atomic.Bool
	writeMu     sync.Mutex
}

// New creates a server over cfg.Service.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg.Name == "" {
		cfg.Name = "memoranda"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	return &Server{
		name:    cfg.Name,
		version: cfg.Version,
		service: cfg.Service,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		schemas: schemas,
	}, nil
}

// Initialized reports whether the client has completed the handshake.
func (s *Server) Initialized() bool { return s.initialized.Load() }

// Serve reads one JSON-RPC message per line from r and writes responses to
// w until r reaches EOF or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	s.logger.Info().Str("server", s.name).Msg("MCP server listening on stdio")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("MCP server shutting down")
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				err := <-readErr
				if err != nil {
					return fmt.Errorf("failed to read request: %w", err)
				}
				s.logger.Info().Msg("Client closed input, MCP server shutting down")
				return nil
			}
			if len(line) == 0 {
				continue
			}

			resp := s.HandleMessage(ctx, line)
			if resp == nil {
				continue
			}
			if err := s.write(w, resp); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

func (s *Server) write(w io.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal response")
		data, _ = json.Marshal(errorResponse(resp.ID, CodeInternalError, "Internal error", nil))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = w.Write(append(data, '\n'))
	return err
}

// HandleMessage processes one raw message and returns the response, or nil
// for notifications.
func (s *Server) HandleMessage(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Warn().Err(err).Msg("Invalid JSON received")
		s.metrics.RecordRPCRequest("invalid", true)
		return errorResponse(nil, CodeParseError, "Parse error", nil)
	}

	ctx = tracing.NewRequestContext(ctx)
	resp := s.handleRequest(ctx, &req)

	method := req.Method
	if method == "" {
		method = "invalid"
	}
	s.metrics.RecordRPCRequest(method, resp != nil && resp.Error != nil)

	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().Str("method", req.Method).RawJSON("id", normalizeID(req.ID)).Msg("Handling request")

	if req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request", nil)
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		logger.Info().Msg("Client initialized")
		return nil
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		if !s.Initialized() {
			return notInitialized(req)
		}
		return s.handleListTools(req)
	case "tools/call":
		if !s.Initialized() {
			return notInitialized(req)
		}
		return s.handleCallTool(ctx, req)
	default:
		logger.Debug().Str("method", req.Method).Msg("Unhandled method")
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found", nil)
	}
}

func notInitialized(req *Request) *Response {
	return errorResponse(req.ID, CodeNotInitialized, "Server not initialized", nil)
}

func (s *Server) handleInitialize(req *Request) *Response {
	s.initialized.Store(true)
	return resultResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{ListChanged: true},
		},
	})
}

func (s *Server) handleListTools(req *Request) *Response {
	tools := make([]Tool, 0, len(Operations))
	for _, op := range Operations {
		tools = append(tools, op.Tool())
	}
	return resultResponse(req.ID, ListToolsResult{Tools: tools})
}

func (s *Server) handleCallTool(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params", nil)
	}

	op, ok := ParseOperation(params.Name)
	if !ok {
		return errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.Name), nil)
	}

	if err := validateArguments(s.schemas[op], params.Arguments); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("Invalid params: %v", err), nil)
	}

	ctx = tracing.WithTool(ctx, op.String())
	ctx, span := tracing.StartSpan(ctx, tracing.RPCTracer, "tool."+op.String(),
		attribute.String("tool.name", op.String()),
	)
	start := time.Now()

	text, err := s.dispatch(ctx, op, params.Arguments)

	s.metrics.RecordToolCall(op.String(), time.Since(start), err)
	tracing.EndSpan(span, err)

	if err != nil {
		logger := tracing.LoggerFromContext(ctx, s.logger)
		var argErr *argumentError
		var verr *memo.ValidationError
		if errors.As(err, &argErr) || errors.As(err, &verr) {
			logger.Debug().Err(err).Msg("Tool call rejected")
			return errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("Invalid params: %v", err), nil)
		}

		logger.Error().Err(err).Msg("Tool call failed")
		return errorResponse(req.ID, CodeToolFailed, fmt.Sprintf("Tool execution failed: %v", err),
			map[string]string{"error_type": store.ErrorType(err)})
	}

	return resultResponse(req.ID, textResult(text))
}

// argumentError is an argument that passed the schema but is still unusable.
type argumentError struct {
	name string
	err  error
}

func (e *argumentError) Error() string { return fmt.Sprintf("invalid %s: %v", e.name, e.err) }
func (e *argumentError) Unwrap() error { return e.err }

// dispatch runs op against the service and renders the result as text.
func (s *Server) dispatch(ctx context.Context, op Operation, args map[string]interface{}) (string, error) {
	str := func(name string) string {
		v, _ := args[name].(string)
		return v
	}
	id := func() (memo.ID, error) {
		parsed, err := memo.ParseID(str("id"))
		if err != nil {
			return memo.ID{}, &argumentError{name: "id", err: err}
		}
		return parsed, nil
	}

	switch op {
	case OpCreateMemo:
		m, err := s.service.Create(ctx, str("title"), str("content"))
		if err != nil {
			return "", err
		}
		return toJSON(m)

	case OpUpdateMemo:
		memoID, err := id()
		if err != nil {
			return "", err
		}
		m, err := s.service.Update(ctx, memoID, str("content"))
		if err != nil {
			return "", err
		}
		return toJSON(m)

	case OpGetMemo:
		memoID, err := id()
		if err != nil {
			return "", err
		}
		m, err := s.service.Get(ctx, memoID)
		if err != nil {
			return "", err
		}
		return toJSON(m)

	case OpDeleteMemo:
		memoID, err := id()
		if err != nil {
			return "", err
		}
		if err := s.service.Delete(ctx, memoID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted memo %s", memoID), nil

	case OpListMemos:
		memos, err := s.service.List(ctx)
		if err != nil {
			return "", err
		}
		return toJSON(memos)

	case OpSearchMemos:
		results, err := s.service.Search(ctx, str("query"))
		if err != nil {
			return "", err
		}
		return toJSON(results)

	case OpGetAllContext:
		return s.service.GetAllContext(ctx)

	default:
		return "", fmt.Errorf("unhandled operation %s", op)
	}
}

func toJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
