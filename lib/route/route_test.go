// Copyright 2026 The Claude Island Authors
// SPDX-License-Identifier: Apache-2.0

package route

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return &Router{
		SocketPath:        filepath.Join(t.TempDir(), "island.sock"),
		BusAddr:           "127.0.0.1:1",
		SubjectState:      "claude.island.state",
		SubjectPermission: "claude.island.permission",
		PublishTimeout:    2 * time.Second,
		DecisionTimeout:   2 * time.Second,
	}
}

// startObserver listens on the router's socket and runs handler on the
// first connection.
func startObserver(t *testing.T, socketPath string, handler func(conn net.Conn)) {
	t.Helper()
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening on %s: %v", socketPath, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()

	t.Cleanup(func() {
		listener.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("observer handler did not finish")
		}
	})
}

// startBus runs a scripted NATS endpoint: it sends the INFO greeting
// and hands the connection to handler.
func startBus(t *testing.T, handler func(conn net.Conn, reader *bufio.Reader)) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("INFO {\"server_id\":\"island-test\"}\r\n"))
		handler(conn, bufio.NewReader(conn))
	}()

	t.Cleanup(func() {
		listener.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("bus handler did not finish")
		}
	})
	return listener.Addr().String()
}

func busLine(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Errorf("reading bus line: %v", err)
		return ""
	}
	return strings.TrimRight(line, "\r\n")
}

func TestDeliverLocal(t *testing.T) {
	router := newTestRouter(t)
	payload := []byte(`{"session_id":"abc","status":"processing"}`)

	received := make(chan []byte, 1)
	startObserver(t, router.SocketPath, func(conn net.Conn) {
		data, err := io.ReadAll(conn)
		if err != nil {
			t.Errorf("reading document: %v", err)
		}
		received <- data
	})

	if err := router.Deliver(payload); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != string(payload) {
			t.Errorf("observer received %q, want %q", data, payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("observer never received the document")
	}
}

func TestDeliverLocalFailureNotRemote(t *testing.T) {
	router := newTestRouter(t)

	err := router.Deliver([]byte(`{"status":"ended"}`))
	if err == nil {
		t.Fatal("Deliver succeeded with no observer and no fallback")
	}
	if !strings.Contains(err.Error(), "observer socket") {
		t.Errorf("error %q does not name the socket", err)
	}
	if strings.Contains(err.Error(), "bus") {
		t.Errorf("local session attempted bus fallback: %v", err)
	}
}

func TestDeliverFallsBackToBusWhenRemote(t *testing.T) {
	router := newTestRouter(t)
	router.Remote = true
	payload := []byte(`{"session_id":"abc","status":"ended"}`)

	published := make(chan string, 1)
	router.BusAddr = startBus(t, func(conn net.Conn, reader *bufio.Reader) {
		if line := busLine(t, reader); !strings.HasPrefix(line, "CONNECT") {
			t.Errorf("expected CONNECT, got %q", line)
		}
		pubLine := busLine(t, reader)
		data := make([]byte, len(payload)+2)
		if _, err := io.ReadFull(reader, data); err != nil {
			t.Errorf("reading publish payload: %v", err)
		}
		if line := busLine(t, reader); line != "PING" {
			t.Errorf("expected PING, got %q", line)
		}
		conn.Write([]byte("PONG\r\n"))
		published <- pubLine + "\n" + string(data[:len(payload)])
	})

	if err := router.Deliver(payload); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	select {
	case got := <-published:
		want := fmt.Sprintf("PUB claude.island.state %d\n%s", len(payload), payload)
		if got != want {
			t.Errorf("bus saw:\n%s\nwant:\n%s", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("bus never received the publish")
	}
}

func TestRequestDecisionLocal(t *testing.T) {
	router := newTestRouter(t)

	startObserver(t, router.SocketPath, func(conn net.Conn) {
		buf := make([]byte, 4096)
		if _, err := conn.Read(buf); err != nil {
			t.Errorf("reading request: %v", err)
			return
		}
		conn.Write([]byte(`{"decision":"allow","reason":""}`))
	})

	decision := router.RequestDecision([]byte(`{"status":"waiting_for_approval"}`))
	if decision.Decision != DecisionAllow {
		t.Errorf("decision = %q, want allow", decision.Decision)
	}
}

func TestRequestDecisionLocalDeny(t *testing.T) {
	router := newTestRouter(t)

	startObserver(t, router.SocketPath, func(conn net.Conn) {
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte(`{"decision":"deny","reason":"not on this host"}`))
	})

	decision := router.RequestDecision([]byte(`{"status":"waiting_for_approval"}`))
	if decision.Decision != DecisionDeny {
		t.Errorf("decision = %q, want deny", decision.Decision)
	}
	if decision.Reason != "not on this host" {
		t.Errorf("reason = %q, want the observer's reason", decision.Reason)
	}
}

func TestRequestDecisionLocalFragmentedReply(t *testing.T) {
	router := newTestRouter(t)

	startObserver(t, router.SocketPath, func(conn net.Conn) {
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte(`{"decision":"al`))
		time.Sleep(50 * time.Millisecond)
		conn.Write([]byte(`low","reason":"took two writes"}`))
	})

	decision := router.RequestDecision([]byte(`{"status":"waiting_for_approval"}`))
	if decision.Decision != DecisionAllow {
		t.Errorf("decision = %q, want allow", decision.Decision)
	}
	if decision.Reason != "took two writes" {
		t.Errorf("reason = %q, want the observer's reason", decision.Reason)
	}
}

func TestRequestDecisionLocalNoReply(t *testing.T) {
	router := newTestRouter(t)

	startObserver(t, router.SocketPath, func(conn net.Conn) {
		buf := make([]byte, 4096)
		conn.Read(buf)
		// Close without replying.
	})

	decision := router.RequestDecision([]byte(`{"status":"waiting_for_approval"}`))
	if decision.Decision != DecisionAsk {
		t.Errorf("decision = %q, want ask", decision.Decision)
	}
}

func TestRequestDecisionLocalUnavailable(t *testing.T) {
	router := newTestRouter(t)

	decision := router.RequestDecision([]byte(`{"status":"waiting_for_approval"}`))
	if decision.Decision != DecisionAsk {
		t.Errorf("decision = %q, want ask", decision.Decision)
	}
}

func TestRequestDecisionRemoteBus(t *testing.T) {
	router := newTestRouter(t)
	router.Remote = true
	payload := []byte(`{"status":"waiting_for_approval","tool":"Bash"}`)

	router.BusAddr = startBus(t, func(conn net.Conn, reader *bufio.Reader) {
		busLine(t, reader) // CONNECT
		subLine := busLine(t, reader)
		fields := strings.Fields(subLine)
		if len(fields) != 3 || fields[0] != "SUB" {
			t.Errorf("expected SUB frame, got %q", subLine)
			return
		}
		inbox := fields[1]

		pubLine := busLine(t, reader)
		if !strings.HasPrefix(pubLine, "PUB claude.island.permission "+inbox+" ") {
			t.Errorf("publish %q does not carry the reply inbox", pubLine)
		}
		data := make([]byte, len(payload)+2)
		if _, err := io.ReadFull(reader, data); err != nil {
			t.Errorf("reading request payload: %v", err)
		}

		busLine(t, reader) // PING
		conn.Write([]byte("PONG\r\n"))

		reply := `{"decision":"deny","reason":"blocked remotely"}`
		fmt.Fprintf(conn, "MSG %s 1 %d\r\n%s\r\n", inbox, len(reply), reply)
	})

	decision := router.RequestDecision(payload)
	if decision.Decision != DecisionDeny {
		t.Errorf("decision = %q, want deny", decision.Decision)
	}
	if decision.Reason != "blocked remotely" {
		t.Errorf("reason = %q, want the bus reply's reason", decision.Reason)
	}
}

func TestRequestDecisionRemoteBusDown(t *testing.T) {
	router := newTestRouter(t)
	router.Remote = true

	decision := router.RequestDecision([]byte(`{"status":"waiting_for_approval"}`))
	if decision.Decision != DecisionAsk {
		t.Errorf("decision = %q, want ask", decision.Decision)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"allow", `{"decision":"allow"}`, DecisionAllow},
		{"deny", `{"decision":"deny","reason":"no"}`, DecisionDeny},
		{"empty decision", `{"reason":"hm"}`, DecisionAsk},
		{"malformed", `{not json`, DecisionAsk},
		{"empty body", ``, DecisionAsk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDecision([]byte(tt.reply)); got.Decision != tt.want {
				t.Errorf("parseDecision(%q) = %q, want %q", tt.reply, got.Decision, tt.want)
			}
		})
	}
}

func TestIsRemoteSession(t *testing.T) {
	t.Setenv("SSH_CLIENT", "")
	t.Setenv("SSH_TTY", "")
	t.Setenv("SSH_CONNECTION", "")
	if IsRemoteSession() {
		t.Error("IsRemoteSession = true with no SSH environment")
	}

	t.Setenv("SSH_CONNECTION", "10.0.0.5 52211 10.0.0.9 22")
	if !IsRemoteSession() {
		t.Error("IsRemoteSession = false with SSH_CONNECTION set")
	}
}
