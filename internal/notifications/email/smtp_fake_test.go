package email

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func strPtr(s string) *string { return &s }

// receivedMessage is one transaction accepted by fakeSMTP.
type receivedMessage struct {
	From   string
	To     []string
	Data   string
	Authed bool
}

// fakeSMTP is a minimal in-process SMTP server: EHLO, AUTH PLAIN, MAIL, RCPT,
// DATA and QUIT. It never advertises STARTTLS. Transactions are recorded
// before the final 250 is sent.
type fakeSMTP struct {
	ln       net.Listener
	authFail bool

	mu       sync.Mutex
	messages []receivedMessage
}

func startFakeSMTP(t *testing.T, authFail bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeSMTP{ln: ln, authFail: authFail}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()

	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) received() []receivedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]receivedMessage(nil), f.messages...)
}

func (f *fakeSMTP) serve(conn net.Conn) {
	defer conn.Close()

	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 localhost ESMTP fake")

	var cur receivedMessage
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")

		switch strings.ToUpper(verb) {
		case "EHLO":
			_ = tp.PrintfLine("250-localhost")
			_ = tp.PrintfLine("250-AUTH PLAIN")
			_ = tp.PrintfLine("250 OK")
		case "HELO", "NOOP", "RSET":
			_ = tp.PrintfLine("250 OK")
		case "AUTH":
			if f.authFail {
				_ = tp.PrintfLine("535 5.7.8 Authentication credentials invalid")
				continue
			}
			cur.Authed = true
			_ = tp.PrintfLine("235 2.7.0 Authentication successful")
		case "MAIL":
			cur.From = addressArg(arg)
			_ = tp.PrintfLine("250 OK")
		case "RCPT":
			cur.To = append(cur.To, addressArg(arg))
			_ = tp.PrintfLine("250 OK")
		case "DATA":
			_ = tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			cur.Data = string(data)
			f.mu.Lock()
			f.messages = append(f.messages, cur)
			f.mu.Unlock()
			cur = receivedMessage{Authed: cur.Authed}
			_ = tp.PrintfLine("250 OK queued")
		case "QUIT":
			_ = tp.PrintfLine("221 Bye")
			return
		default:
			_ = tp.PrintfLine("502 Command not implemented")
		}
	}
}

// addressArg extracts the address from "FROM:<a@b>" or "TO:<a@b>".
func addressArg(arg string) string {
	start := strings.IndexByte(arg, '<')
	end := strings.IndexByte(arg, '>')
	if start < 0 || end < start {
		return arg
	}
	return arg[start+1 : end]
}

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}
