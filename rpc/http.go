package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"flashstake/native/flash"
	"flashstake/native/strategy"
	"flashstake/observability/metrics"
	"flashstake/token"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	writeRatePerSecond = 5
	writeRateBurst     = 10
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

// Server exposes the flash engine over JSON-RPC, plus a websocket event
// stream, Prometheus metrics and a health probe.
type Server struct {
	engine    *flash.Engine
	tokens    *token.Factory
	authToken string
	hub       *eventHub
	metrics   *metrics.FlashMetrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer wires the RPC surface around an engine. authToken guards the
// mutating administrative methods; an empty token disables them.
func NewServer(engine *flash.Engine, tokens *token.Factory, authToken string) *Server {
	return &Server{
		engine:    engine,
		tokens:    tokens,
		authToken: strings.TrimSpace(authToken),
		hub:       newEventHub(),
		metrics:   metrics.Flash(),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Hub returns the event hub so the node can plug it into the engine emitter.
func (s *Server) Hub() *eventHub { return s.hub }

// Router builds the HTTP mux: JSON-RPC at the root, the event stream at /ws,
// Prometheus metrics at /metrics and a liveness probe at /healthz.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/ws", s.handleEventsWS)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return otelhttp.NewHandler(r, "flash.rpc")
}

// Start serves the router on addr, blocking until the listener fails.
func (s *Server) Start(addr string) error {
	fmt.Printf("Starting JSON-RPC server on %s\n", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	s.metrics.IncRPCRequest(req.Method, "received")

	if isWriteMethod(req.Method) && !s.allowSource(r.RemoteAddr) {
		s.metrics.IncRPCRequest(req.Method, "rate_limited")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	switch req.Method {
	case "flash_stake":
		s.handleFlashStake(w, r, req)
	case "flash_unstake":
		s.handleFlashUnstake(w, r, req)
	case "flash_flashStake":
		s.handleFlashFlashStake(w, r, req)
	case "flash_burnFToken":
		s.handleFlashBurnFToken(w, r, req)
	case "flash_issueNFT":
		s.handleFlashIssueNFT(w, r, req)
	case "flash_getStakeInfo":
		s.handleFlashGetStakeInfo(w, r, req)
	case "flash_quoteMint":
		s.handleFlashQuoteMint(w, r, req)
	case "flash_quoteBurn":
		s.handleFlashQuoteBurn(w, r, req)
	case "flash_getStrategy":
		s.handleFlashGetStrategy(w, r, req)
	case "flash_getMintFeeInfo":
		s.handleFlashGetMintFeeInfo(w, r, req)
	case "flash_registerStrategy":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleFlashRegisterStrategy(w, r, req)
	case "flash_setMintFeeInfo":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleFlashSetMintFeeInfo(w, r, req)
	case "token_getBalance":
		s.handleTokenGetBalance(w, r, req)
	case "token_mint":
		s.handleTokenMint(w, r, req)
	case "token_approve":
		s.handleTokenApprove(w, r, req)
	case "token_transfer":
		s.handleTokenTransfer(w, r, req)
	default:
		s.metrics.IncRPCRequest(req.Method, "not_found")
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case "flash_stake", "flash_unstake", "flash_flashStake", "flash_burnFToken",
		"flash_issueNFT", "flash_registerStrategy", "flash_setMintFeeInfo",
		"token_mint", "token_approve", "token_transfer":
		return true
	}
	return false
}

// allowSource applies a token-bucket limit per calling host to the mutating
// methods.
func (s *Server) allowSource(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(writeRatePerSecond), writeRateBurst)
		s.limiters[host] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// errorCode maps engine errors onto JSON-RPC codes. Validation failures
// become invalid params, ownership failures become unauthorized, everything
// else is a server error.
func errorCode(err error) int {
	switch {
	case errors.Is(err, flash.ErrInvalidAmount),
		errors.Is(err, flash.ErrDurationTooLow),
		errors.Is(err, flash.ErrDurationTooHigh),
		errors.Is(err, flash.ErrMintFeeTooHigh),
		errors.Is(err, flash.ErrFeeRecipientRequired),
		errors.Is(err, flash.ErrUnregisteredStrategy),
		errors.Is(err, flash.ErrStakeNotFound):
		return codeInvalidParams
	case errors.Is(err, flash.ErrNotOwner),
		errors.Is(err, flash.ErrNotNFTOwner),
		errors.Is(err, flash.ErrNFTTokenRequired),
		errors.Is(err, flash.ErrNotProtocolOwner):
		return codeUnauthorized
	case errors.Is(err, flash.ErrMinimumOutput),
		errors.Is(err, strategy.ErrMinimumOutput):
		return codeInvalidParams
	default:
		return codeServerError
	}
}
