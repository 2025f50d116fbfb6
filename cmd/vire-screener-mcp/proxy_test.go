package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func TestStdioProxy_ForwardsEachLine(t *testing.T) {
	var bodies []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mcp" {
			t.Errorf("expected /mcp, got %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}` + "\n"))
	}))
	defer ts.Close()

	in := strings.NewReader("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"ping\"}\n\n{\"jsonrpc\":\"2.0\",\"id\":2,\"method\":\"ping\"}\n")
	var out bytes.Buffer
	if err := NewStdioProxy(ts.URL + "/").RunWithIO(in, &out); err != nil {
		t.Fatalf("RunWithIO failed: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("expected 2 forwarded messages, got %d", len(bodies))
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %d: %q", len(lines), out.String())
	}
}

func TestStdioProxy_ServerErrorBecomesJSONRPCError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}` + "\n")
	if err := NewStdioProxy(ts.URL).RunWithIO(in, &out); err != nil {
		t.Fatalf("RunWithIO failed: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, `"id":7`) || !strings.Contains(got, `"code":-32000`) {
		t.Errorf("expected JSON-RPC error for id 7, got %s", got)
	}
}

func TestStdioProxy_AcceptedNotificationWritesNothing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	if err := NewStdioProxy(ts.URL).RunWithIO(in, &out); err != nil {
		t.Fatalf("RunWithIO failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
}

func TestStdioProxy_AgainstStreamableServer(t *testing.T) {
	mcpServer := server.NewMCPServer("vire-screener-test", "test", server.WithToolCapabilities(true))
	mcpServer.AddTool(
		mcp.NewTool("get_version", mcp.WithDescription("Get the server version")),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("Vire Screener test"), nil
		},
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true)))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"stdio-test","version":"1.0.0"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_version","arguments":{}}}`,
	}, "\n") + "\n")

	var out bytes.Buffer
	if err := NewStdioProxy(ts.URL).RunWithIO(in, &out); err != nil {
		t.Fatalf("RunWithIO failed: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "vire-screener-test") {
		t.Errorf("expected initialize result with server name, got %s", got)
	}
	if !strings.Contains(got, "Vire Screener test") {
		t.Errorf("expected tool result text, got %s", got)
	}
}

func TestExtractID(t *testing.T) {
	if got := string(extractID([]byte(`{"id":"abc"}`))); got != `"abc"` {
		t.Errorf("expected \"abc\", got %s", got)
	}
	if got := string(extractID([]byte(`not json`))); got != "null" {
		t.Errorf("expected null, got %s", got)
	}
}

func TestLastSSEData(t *testing.T) {
	stream := []byte("event: message\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\nevent: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":3,\"result\":{}}\n\n")
	got, err := lastSSEData(stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"jsonrpc":"2.0","id":3,"result":{}}` {
		t.Errorf("unexpected payload %s", got)
	}

	if _, err := lastSSEData([]byte("event: ping\n\n")); err == nil {
		t.Error("expected error for stream without data")
	}
}

func TestStdioProxy_EventStreamResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":9,\"result\":{\"ok\":true}}\n\n"))
	}))
	defer ts.Close()

	var out bytes.Buffer
	in := strings.NewReader(`{"jsonrpc":"2.0","id":9,"method":"tools/list"}` + "\n")
	if err := NewStdioProxy(ts.URL).RunWithIO(in, &out); err != nil {
		t.Fatalf("RunWithIO failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != `{"jsonrpc":"2.0","id":9,"result":{"ok":true}}` {
		t.Errorf("unexpected output %q", out.String())
	}
}
