package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"stakeledger/core/events"
	"stakeledger/core/eventstore"
)

func TestEventsWebsocketStream(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node)
	from := testAddr(0x01)
	to := testAddr(0x02)
	fundAccounts(t, node, map[string]string{bech(from): "1000"})

	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	// Published before the dial so the stream must replay it as backlog.
	if err := node.Transfer(from, to, big.NewInt(250)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws://" + strings.TrimPrefix(httpSrv.URL, "http://") + "/ws/events?cursor=0"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readEntry := func() eventstore.Entry {
		t.Helper()
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if msgType != websocket.MessageText {
			t.Fatalf("message type = %v, want text", msgType)
		}
		var entry eventstore.Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			t.Fatalf("decode entry: %v", err)
		}
		return entry
	}

	backlog := readEntry()
	if backlog.Sequence != 1 || backlog.Type != events.TypeTransfer {
		t.Fatalf("unexpected backlog entry: %+v", backlog)
	}
	if backlog.Attributes["amount"] != "250" {
		t.Fatalf("amount = %q, want 250", backlog.Attributes["amount"])
	}
	if backlog.Attributes["from"] != bech(from) || backlog.Attributes["to"] != bech(to) {
		t.Fatalf("unexpected transfer endpoints: %+v", backlog.Attributes)
	}

	if err := node.Transfer(from, to, big.NewInt(125)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	live := readEntry()
	if live.Sequence != 2 || live.Type != events.TypeTransfer {
		t.Fatalf("unexpected live entry: %+v", live)
	}
	if live.Attributes["amount"] != "125" {
		t.Fatalf("amount = %q, want 125", live.Attributes["amount"])
	}
}

func TestEventsWebsocketCursorSkipsReplayed(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node)
	from := testAddr(0x03)
	to := testAddr(0x04)
	fundAccounts(t, node, map[string]string{bech(from): "1000"})

	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	if err := node.Transfer(from, to, big.NewInt(10)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := node.Transfer(from, to, big.NewInt(20)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws://" + strings.TrimPrefix(httpSrv.URL, "http://") + "/ws/events?cursor=1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	var entry eventstore.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Sequence != 2 || entry.Attributes["amount"] != "20" {
		t.Fatalf("cursor should skip sequence 1, got %+v", entry)
	}
}
