package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"
)

func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

type recordingHandler struct {
	openClass    chan OpenClass
	navigate     chan NavigateToSymbol
	panicOnClass bool
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		openClass: make(chan OpenClass, 16),
		navigate:  make(chan NavigateToSymbol, 16),
	}
}

func (h *recordingHandler) HandleOpenClass(ctx context.Context, msg OpenClass) {
	if h.panicOnClass {
		panic("boom")
	}
	h.openClass <- msg
}

func (h *recordingHandler) HandleNavigate(ctx context.Context, msg NavigateToSymbol) {
	h.navigate <- msg
}

// fakeHelper plays the companion app side of the connection
type fakeHelper struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakeHelper(t *testing.T) *fakeHelper {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	h := &fakeHelper{ln: ln, conns: make(chan net.Conn, 1)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			h.conns <- conn
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return h
}

func (h *fakeHelper) port() int {
	return h.ln.Addr().(*net.TCPAddr).Port
}

func (h *fakeHelper) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-h.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection")
		return nil
	}
}

func connectedChannel(t *testing.T, handler Handler) (*Channel, net.Conn) {
	t.Helper()
	helper := newFakeHelper(t)
	c := NewChannel(helper.port(), 500*time.Millisecond, handler)
	t.Cleanup(c.Close)

	if !c.Connect(context.Background(), 3, time.Millisecond) {
		t.Fatal("expected Connect to succeed")
	}
	return c, helper.accept(t)
}

// nextMessage decodes outbound messages, skipping heartbeats
func nextMessage(t *testing.T, r *Reader) Message {
	t.Helper()
	for {
		msg, err := DecodeOutbound(r)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if _, ok := msg.(Heartbeat); !ok {
			return msg
		}
	}
}

func TestChannel_IsConnectedWithoutConnection(t *testing.T) {
	c := NewChannel(1, time.Millisecond, newRecordingHandler())
	if c.IsConnected() {
		t.Error("channel without a connection must not report connected")
	}
	if c.State() != Disconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
	if err := c.Send(OpenFile{Path: "a", Line: 1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestChannel_ConnectExhaustsRetries(t *testing.T) {
	quietLogger(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := NewChannel(port, 100*time.Millisecond, newRecordingHandler())
	defer c.Close()

	start := time.Now()
	if c.Connect(context.Background(), 3, 20*time.Millisecond) {
		t.Fatal("expected Connect to fail")
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("expected a delay before every attempt, took %v", elapsed)
	}
	if c.State() != Disconnected {
		t.Errorf("expected disconnected, got %s", c.State())
	}
}

func TestChannel_ConnectRespectsContext(t *testing.T) {
	quietLogger(t)
	c := NewChannel(1, 100*time.Millisecond, newRecordingHandler())
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c.Connect(ctx, 5, time.Second) {
		t.Fatal("expected Connect to fail on a cancelled context")
	}
}

func TestChannel_SendOpenFile(t *testing.T) {
	quietLogger(t)
	c, conn := connectedChannel(t, newRecordingHandler())

	if c.State() != Connected {
		t.Fatalf("expected connected, got %s", c.State())
	}
	if err := c.Send(OpenFile{Path: "C:/x/Foo.java", Line: 42}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := nextMessage(t, NewReader(bufio.NewReader(conn)))
	if got != (OpenFile{Path: "C:/x/Foo.java", Line: 42}) {
		t.Errorf("unexpected message %#v", got)
	}
}

func TestChannel_ConcurrentSendsNeverInterleave(t *testing.T) {
	quietLogger(t)
	c, conn := connectedChannel(t, newRecordingHandler())

	const perSender = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range perSender {
			if err := c.Send(OpenFile{Path: fmt.Sprintf("C:/x/File%d.java", i), Line: int32(i)}); err != nil {
				t.Errorf("Send OpenFile failed: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := range perSender {
			msg := SearchResults{
				Query:          fmt.Sprintf("query%d", i),
				Results:        []string{"a.B", "c.D", fmt.Sprintf("e.F%d", i)},
				MethodSearch:   i%2 == 0,
				ClassesScanned: int32(i),
				ElapsedMs:      7,
			}
			if err := c.Send(msg); err != nil {
				t.Errorf("Send SearchResults failed: %v", err)
				return
			}
		}
	}()

	r := NewReader(bufio.NewReader(conn))
	nextFile, nextSearch := 0, 0
	for nextFile+nextSearch < 2*perSender {
		switch m := nextMessage(t, r).(type) {
		case OpenFile:
			if m.Path != fmt.Sprintf("C:/x/File%d.java", nextFile) || m.Line != int32(nextFile) {
				t.Fatalf("corrupted or reordered OpenFile %#v", m)
			}
			nextFile++
		case SearchResults:
			if m.Query != fmt.Sprintf("query%d", nextSearch) || len(m.Results) != 3 || m.ClassesScanned != int32(nextSearch) {
				t.Fatalf("corrupted or reordered SearchResults %#v", m)
			}
			nextSearch++
		default:
			t.Fatalf("unexpected message %#v", m)
		}
	}
	wg.Wait()
}

func TestChannel_DispatchesInbound(t *testing.T) {
	quietLogger(t)
	handler := newRecordingHandler()
	_, conn := connectedChannel(t, handler)

	w := bufio.NewWriter(conn)
	Encode(w, OpenClass{ClassName: "com.foo.Baz"})
	Encode(w, NavigateToSymbol{RelativePath: "com/foo/Bar.java", Row: 10, Column: 5})
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-handler.openClass:
		if got.ClassName != "com.foo.Baz" {
			t.Errorf("unexpected class %q", got.ClassName)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("open class request was not dispatched")
	}

	select {
	case got := <-handler.navigate:
		if got != (NavigateToSymbol{RelativePath: "com/foo/Bar.java", Row: 10, Column: 5}) {
			t.Errorf("unexpected navigation %#v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("navigation request was not dispatched")
	}
}

func TestChannel_ReceiveLoopSurvivesPanicAndUnknownKind(t *testing.T) {
	quietLogger(t)
	handler := newRecordingHandler()
	handler.panicOnClass = true
	c, conn := connectedChannel(t, handler)

	w := bufio.NewWriter(conn)
	Encode(w, OpenClass{ClassName: "com.foo.Baz"})
	w.WriteByte(9)
	w.WriteByte(byte(KindHeartbeat))
	Encode(w, NavigateToSymbol{RelativePath: "com/foo/Bar.java", Row: 1, Column: 2})
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-handler.navigate:
		if got.Row != 1 || got.Column != 2 {
			t.Errorf("unexpected navigation %#v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("receive loop did not survive the panic and unknown kind")
	}

	if c.State() != Connected {
		t.Errorf("expected channel to stay connected, got %s", c.State())
	}
}

func TestChannel_PeerCloseDisconnects(t *testing.T) {
	quietLogger(t)
	c, conn := connectedChannel(t, newRecordingHandler())

	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for c.State() == Connected && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.State() != Disconnected {
		t.Fatalf("expected disconnected after peer close, got %s", c.State())
	}
	if c.IsConnected() {
		t.Error("IsConnected must be false after teardown")
	}
	if err := c.Send(OpenFile{Path: "a", Line: 1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestChannel_ReconnectAfterDisconnect(t *testing.T) {
	quietLogger(t)
	helper := newFakeHelper(t)
	c := NewChannel(helper.port(), 500*time.Millisecond, newRecordingHandler())
	defer c.Close()

	if !c.Connect(context.Background(), 3, time.Millisecond) {
		t.Fatal("first Connect failed")
	}
	first := helper.accept(t)
	first.Close()

	deadline := time.Now().Add(5 * time.Second)
	for c.State() == Connected && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if !c.Connect(context.Background(), 3, time.Millisecond) {
		t.Fatal("second Connect failed")
	}
	second := helper.accept(t)

	if err := c.Send(OpenFile{Path: "again", Line: 2}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := nextMessage(t, NewReader(bufio.NewReader(second))); got != (OpenFile{Path: "again", Line: 2}) {
		t.Errorf("unexpected message %#v", got)
	}
}

func TestChannel_CloseIsFinal(t *testing.T) {
	quietLogger(t)
	c, _ := connectedChannel(t, newRecordingHandler())

	c.Close()
	c.Close()

	if c.IsConnected() {
		t.Error("closed channel must not report connected")
	}
	if c.Connect(context.Background(), 1, time.Millisecond) {
		t.Error("closed channel must not reconnect")
	}
}
