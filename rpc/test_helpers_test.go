package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"stakeledger/core"
	"stakeledger/crypto"
	"stakeledger/storage"
)

const testAuthToken = "rpc-test-token"

func newTestNode(t testing.TB) *core.Node {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func newTestServer(t testing.TB, node *core.Node) *Server {
	t.Helper()
	cfg := ServerConfig{
		AuthToken: testAuthToken,
		RateLimit: RateLimit{RequestsPerMinute: 6000, Burst: 100},
	}
	srv, err := NewServer(node, cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func bech(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.StakePrefix, addr[:]).String()
}

func fundAccounts(t testing.TB, node *core.Node, allocs map[string]string) {
	t.Helper()
	if err := node.ApplyGenesis(allocs); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
}

func bigInt(t testing.TB, raw string) *big.Int {
	t.Helper()
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		t.Fatalf("parse big int %q", raw)
	}
	return value
}

func marshalParam(t testing.TB, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal param: %v", err)
	}
	return data
}

func decodeRPCResponse(t testing.TB, rec *httptest.ResponseRecorder) (json.RawMessage, *RPCError) {
	t.Helper()
	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	result, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	return result, nil
}

func unmarshalResult(t testing.TB, raw json.RawMessage, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, target); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

// postRPC drives the full handle path, envelope parsing included.
func postRPC(t testing.TB, srv *Server, body []byte, authorize bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if authorize {
		req.Header.Set("Authorization", "Bearer "+testAuthToken)
	}
	rec := httptest.NewRecorder()
	srv.handle(rec, req)
	return rec
}
