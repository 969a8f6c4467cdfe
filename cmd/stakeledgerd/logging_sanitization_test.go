package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"stakeledger/observability/logging"
)

func TestStartupLogRedactsAuthToken(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{}))

	sensitiveToken := "static-bearer-0123456789abcdef"
	logger.Info("Stake ledger node initialised and running",
		logging.MaskField("rpc_token", sensitiveToken),
		slog.String("listen", "127.0.0.1:8545"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log payload: %v", err)
	}

	if !logging.IsSensitive("rpc_token") {
		t.Fatalf("rpc_token must be classified as credential material")
	}

	raw := buf.Bytes()
	if bytes.Contains(raw, []byte(sensitiveToken)) {
		t.Fatalf("log output leaked auth token: %s", raw)
	}

	value, ok := entry["rpc_token"].(string)
	if !ok {
		t.Fatalf("expected string rpc_token attribute, got %T", entry["rpc_token"])
	}
	if value != logging.RedactedValue {
		t.Fatalf("expected redacted token, got %q", value)
	}
}
