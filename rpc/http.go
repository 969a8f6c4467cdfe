package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"stakeledger/core"
	"stakeledger/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	defaultJWTSkew = 2 * time.Minute
)

// AuthTokenEnv names the environment variable consulted for the static bearer
// token when no token is set in the server config.
const AuthTokenEnv = "STAKELEDGER_RPC_TOKEN"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// RateLimit bounds how many mutating requests a single source may issue.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// JWTConfig switches authentication from the static RPC token to HS256 bearer
// tokens. The signing secret is resolved from the named environment variable
// so it never lands in a config file.
type JWTConfig struct {
	Enable         bool
	Alg            string
	HSSecretEnv    string
	Issuer         string
	Audience       []string
	MaxSkewSeconds int
}

// ServerConfig carries the authentication and throttling knobs for the
// JSON-RPC server.
type ServerConfig struct {
	AuthToken string
	JWT       JWTConfig
	RateLimit RateLimit
}

type Server struct {
	node *core.Node
	cfg  ServerConfig

	authToken string
	jwtSecret []byte
	jwtSkew   time.Duration

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewServer wires a JSON-RPC server over node. When the config carries no
// static token the STAKELEDGER_RPC_TOKEN environment variable is consulted.
func NewServer(node *core.Node, cfg ServerConfig) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	token := strings.TrimSpace(cfg.AuthToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(AuthTokenEnv))
	}
	srv := &Server{
		node:      node,
		cfg:       cfg,
		authToken: token,
		jwtSkew:   defaultJWTSkew,
		visitors:  make(map[string]*rate.Limiter),
	}
	if cfg.JWT.Enable {
		if alg := strings.TrimSpace(cfg.JWT.Alg); alg != "" && !strings.EqualFold(alg, "HS256") {
			return nil, fmt.Errorf("rpc: unsupported JWT algorithm %q", cfg.JWT.Alg)
		}
		envName := strings.TrimSpace(cfg.JWT.HSSecretEnv)
		if envName == "" {
			return nil, fmt.Errorf("rpc: JWT secret environment variable not named")
		}
		secret := strings.TrimSpace(os.Getenv(envName))
		if secret == "" {
			return nil, fmt.Errorf("rpc: JWT secret environment variable %s is empty", envName)
		}
		srv.jwtSecret = []byte(secret)
		if cfg.JWT.MaxSkewSeconds > 0 {
			srv.jwtSkew = time.Duration(cfg.JWT.MaxSkewSeconds) * time.Second
		}
	}
	return srv, nil
}

// Router assembles the HTTP surface: JSON-RPC dispatch at the root, the
// websocket event stream, Prometheus metrics, and a liveness probe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Method(http.MethodPost, "/", otelhttp.NewHandler(http.HandlerFunc(s.handle), "stakeledger.rpc"))
	return r
}

// Start serves the router until ctx is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
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

// statusRecorder captures the HTTP status ultimately written so the request
// metrics see the same code the client did.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
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

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.dispatch(rec, r, req)
	observability.RPCMetrics().Observe(req.Method, rec.status, time.Since(start))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "staking_initialize":
		s.handleStakingInitialize(w, r, req)
	case "staking_stake":
		s.handleStakingStake(w, r, req)
	case "staking_unstake":
		s.handleStakingUnstake(w, r, req)
	case "staking_claimRewards":
		s.handleStakingClaimRewards(w, r, req)
	case "staking_getPosition":
		s.handleStakingGetPosition(w, r, req)
	case "staking_getPoolInfo":
		s.handleStakingGetPoolInfo(w, r, req)
	case "staking_getPendingRewards":
		s.handleStakingGetPendingRewards(w, r, req)
	case "staking_getLockPeriods":
		s.handleStakingGetLockPeriods(w, r, req)
	case "staking_updatePool":
		s.handleStakingUpdatePool(w, r, req)
	case "staking_setEmergencyMode":
		s.handleStakingSetEmergencyMode(w, r, req)
	case "ledger_getBalance":
		s.handleLedgerGetBalance(w, r, req)
	case "ledger_transfer":
		s.handleLedgerTransfer(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

// guardMutation authenticates the caller and applies the per-source rate
// limit shared by every mutating method. Reads stay open and unthrottled.
func (s *Server) guardMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	if s.node == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "node unavailable", nil)
		return false
	}
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return false
	}
	source := clientSource(r)
	if !s.allowSource(source) {
		observability.RPCMetrics().RecordThrottle(req.Method)
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", source)
		return false
	}
	return true
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if len(s.jwtSecret) > 0 {
		return s.requireJWT(r)
	}
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

func (s *Server) requireJWT(r *http.Request) *RPCError {
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	claims, err := s.parseJWT(tokenString)
	if err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	if err := s.validateClaims(claims); err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

func (s *Server) parseJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithLeeway(s.jwtSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	return claims, nil
}

func (s *Server) validateClaims(claims jwt.MapClaims) error {
	if issuer := strings.TrimSpace(s.cfg.JWT.Issuer); issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != issuer {
			return errors.New("issuer mismatch")
		}
	}
	if len(s.cfg.JWT.Audience) > 0 && !audienceMatches(claims["aud"], s.cfg.JWT.Audience) {
		return errors.New("audience mismatch")
	}
	if exp, ok := claims["exp"].(float64); ok {
		if int64(exp) < time.Now().Unix() {
			return errors.New("token expired")
		}
	}
	return nil
}

func audienceMatches(raw interface{}, allowed []string) bool {
	accepted := make(map[string]struct{}, len(allowed))
	for _, aud := range allowed {
		if trimmed := strings.TrimSpace(aud); trimmed != "" {
			accepted[trimmed] = struct{}{}
		}
	}
	if len(accepted) == 0 {
		return true
	}
	switch val := raw.(type) {
	case string:
		_, ok := accepted[val]
		return ok
	case []interface{}:
		for _, entry := range val {
			if aud, ok := entry.(string); ok {
				if _, match := accepted[aud]; match {
					return true
				}
			}
		}
	}
	return false
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.visitors[source]
	if !ok {
		perSecond := s.cfg.RateLimit.RequestsPerMinute / 60.0
		if perSecond <= 0 {
			perSecond = 1
		}
		burst := s.cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		s.visitors[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
