package rpc

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestHandleRejectsMalformedEnvelopes(t *testing.T) {
	srv := newTestServer(t, newTestNode(t))

	cases := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   int
	}{
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest, wantCode: codeInvalidRequest},
		{name: "whitespace body", body: "   \n", wantStatus: http.StatusBadRequest, wantCode: codeInvalidRequest},
		{name: "invalid json", body: "{not json", wantStatus: http.StatusBadRequest, wantCode: codeParseError},
		{name: "wrong version", body: `{"jsonrpc":"1.0","method":"staking_getPoolInfo","id":1}`, wantStatus: http.StatusBadRequest, wantCode: codeInvalidRequest},
		{name: "missing method", body: `{"jsonrpc":"2.0","id":1}`, wantStatus: http.StatusBadRequest, wantCode: codeInvalidRequest},
		{name: "unknown method", body: `{"jsonrpc":"2.0","method":"staking_doesNotExist","id":1}`, wantStatus: http.StatusNotFound, wantCode: codeMethodNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postRPC(t, srv, []byte(tc.body), false)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			_, rpcErr := decodeRPCResponse(t, rec)
			if rpcErr == nil {
				t.Fatalf("expected an error response")
			}
			if rpcErr.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rpcErr.Code, tc.wantCode)
			}
		})
	}
}

func TestMutationsRequireAuth(t *testing.T) {
	srv := newTestServer(t, newTestNode(t))
	body := []byte(`{"jsonrpc":"2.0","method":"staking_setEmergencyMode","params":[{"caller":"` + bech(testAddr(0xAD)) + `","enabled":true}],"id":7}`)

	rec := postRPC(t, srv, body, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	_, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", rpcErr)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "Bearer wrong-token")
	wrongRec := httptest.NewRecorder()
	srv.handle(wrongRec, req)
	if wrongRec.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d, want %d", wrongRec.Code, http.StatusUnauthorized)
	}
}

func TestReadsSkipAuth(t *testing.T) {
	srv := newTestServer(t, newTestNode(t))
	body := []byte(`{"jsonrpc":"2.0","method":"ledger_getBalance","params":["` + bech(testAddr(0x01)) + `"],"id":1}`)

	rec := postRPC(t, srv, body, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	var resp balanceResult
	unmarshalResult(t, result, &resp)
	if resp.Balance != "0" {
		t.Fatalf("balance = %s, want 0", resp.Balance)
	}
}

func TestMutationRateLimitThrottles(t *testing.T) {
	node := newTestNode(t)
	srv, err := NewServer(node, ServerConfig{
		AuthToken: testAuthToken,
		RateLimit: RateLimit{RequestsPerMinute: 60, Burst: 1},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	body := []byte(`{"jsonrpc":"2.0","method":"staking_setEmergencyMode","params":[{"caller":"` + bech(testAddr(0xAD)) + `","enabled":true}],"id":1}`)

	first := postRPC(t, srv, body, true)
	_, firstErr := decodeRPCResponse(t, first)
	if firstErr != nil && firstErr.Code == codeRateLimited {
		t.Fatalf("first request should not be throttled")
	}

	second := postRPC(t, srv, body, true)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
	_, secondErr := decodeRPCResponse(t, second)
	if secondErr == nil || secondErr.Code != codeRateLimited {
		t.Fatalf("expected rate limit error, got %+v", secondErr)
	}
}

func TestJWTGuardsMutations(t *testing.T) {
	const secretEnv = "RPC_TEST_JWT_SECRET"
	const secret = "rpc-test-secret"
	t.Setenv(secretEnv, secret)

	node := newTestNode(t)
	admin := testAddr(0xAD)
	if err := node.StakingInitialize(admin, "STK", bigInt(t, "1000"), 150, bigInt(t, "1000"), bigInt(t, "1000000000")); err != nil {
		t.Fatalf("initialize pool: %v", err)
	}

	srv, err := NewServer(node, ServerConfig{
		JWT: JWTConfig{
			Enable:         true,
			Alg:            "HS256",
			HSSecretEnv:    secretEnv,
			Issuer:         "rpc-tests",
			Audience:       []string{"unit-tests"},
			MaxSkewSeconds: 60,
		},
		RateLimit: RateLimit{RequestsPerMinute: 6000, Burst: 100},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return token
	}
	body := []byte(`{"jsonrpc":"2.0","method":"staking_setEmergencyMode","params":[{"caller":"` + bech(admin) + `","enabled":true}],"id":1}`)
	post := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(body)))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		srv.handle(rec, req)
		return rec
	}

	good := sign(jwt.MapClaims{
		"iss": "rpc-tests",
		"aud": "unit-tests",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	rec := post(good)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with valid token = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	result, rpcErr := decodeRPCResponse(t, rec)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	var toggled emergencyModeResult
	unmarshalResult(t, result, &toggled)
	if !toggled.EmergencyMode {
		t.Fatalf("expected emergency mode enabled")
	}

	badCases := map[string]string{
		"missing token": "",
		"wrong issuer": sign(jwt.MapClaims{
			"iss": "someone-else",
			"aud": "unit-tests",
			"exp": time.Now().Add(time.Hour).Unix(),
		}),
		"wrong audience": sign(jwt.MapClaims{
			"iss": "rpc-tests",
			"aud": "other-service",
			"exp": time.Now().Add(time.Hour).Unix(),
		}),
		"expired": sign(jwt.MapClaims{
			"iss": "rpc-tests",
			"aud": "unit-tests",
			"exp": time.Now().Add(-2 * time.Hour).Unix(),
		}),
	}
	for name, token := range badCases {
		t.Run(name, func(t *testing.T) {
			rec := post(token)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			_, rpcErr := decodeRPCResponse(t, rec)
			if rpcErr == nil || rpcErr.Code != codeUnauthorized {
				t.Fatalf("expected unauthorized error, got %+v", rpcErr)
			}
		})
	}
}

func TestRouterServesProbesAndMetrics(t *testing.T) {
	srv := newTestServer(t, newTestNode(t))
	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	healthResp, err := http.Get(httpSrv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request: %v", err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", healthResp.StatusCode, http.StatusOK)
	}
	healthBody, err := io.ReadAll(healthResp.Body)
	if err != nil {
		t.Fatalf("read healthz body: %v", err)
	}
	if string(healthBody) != "ok" {
		t.Fatalf("healthz body = %q, want ok", healthBody)
	}

	// Dispatch one request so the lazily-registered collectors exist.
	rpcBody := strings.NewReader(`{"jsonrpc":"2.0","method":"ledger_getBalance","params":["` + bech(testAddr(0x05)) + `"],"id":1}`)
	rpcResp, err := http.Post(httpSrv.URL+"/", "application/json", rpcBody)
	if err != nil {
		t.Fatalf("rpc request: %v", err)
	}
	defer rpcResp.Body.Close()
	if rpcResp.StatusCode != http.StatusOK {
		t.Fatalf("rpc status = %d, want %d", rpcResp.StatusCode, http.StatusOK)
	}
	var envelope RPCResponse
	if err := json.NewDecoder(rpcResp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode rpc response: %v", err)
	}
	if envelope.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", envelope.Error)
	}

	metricsResp, err := http.Get(httpSrv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", metricsResp.StatusCode, http.StatusOK)
	}
	metricsBody, err := io.ReadAll(metricsResp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if !strings.Contains(string(metricsBody), "stakeledger_rpc_requests_total") {
		t.Fatalf("metrics body missing rpc request counter")
	}
}
