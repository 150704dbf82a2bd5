package ws

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/whisper/reportdesk/internal/evidence"
	"github.com/whisper/reportdesk/internal/intake"
)

func newTestConn(t *testing.T, id string) *Connection {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return newConnection(id, server, "test:0")
}

func hasAttachments(m *intake.Message) bool {
	return len(m.Attachments) > 0
}

func TestAwait_QualifyingMessage(t *testing.T) {
	conn := newTestConn(t, "s1")
	ch := &dmChannel{conn: conn}

	want := &intake.Message{Attachments: []evidence.Item{{Filename: "a.png"}}}
	if !conn.deliverDM(want) {
		t.Fatal("deliverDM failed on empty inbox")
	}

	got, err := ch.Await(context.Background(), hasAttachments, time.Second)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if got != want {
		t.Errorf("Await returned %+v, want the delivered message", got)
	}
}

func TestAwait_SkipsNonQualifying(t *testing.T) {
	conn := newTestConn(t, "s1")
	ch := &dmChannel{conn: conn}

	conn.deliverDM(&intake.Message{Text: "hello"})
	conn.deliverDM(&intake.Message{Text: "anyone there"})
	want := &intake.Message{Attachments: []evidence.Item{{Filename: "a.png"}}}
	conn.deliverDM(want)

	got, err := ch.Await(context.Background(), hasAttachments, time.Second)
	if err != nil {
		t.Fatalf("Await returned error: %v", err)
	}
	if got != want {
		t.Errorf("Await returned %+v, want the qualifying message", got)
	}
}

func TestAwait_WindowElapses(t *testing.T) {
	conn := newTestConn(t, "s1")
	ch := &dmChannel{conn: conn}

	start := time.Now()
	_, err := ch.Await(context.Background(), hasAttachments, 20*time.Millisecond)
	if !errors.Is(err, intake.ErrAwaitTimeout) {
		t.Fatalf("Await error = %v, want ErrAwaitTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Await returned before the window elapsed")
	}
}

func TestAwait_NonQualifyingDoesNotResetWindow(t *testing.T) {
	conn := newTestConn(t, "s1")
	ch := &dmChannel{conn: conn}

	// Feed chatter while the window runs; it must still expire on time.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				conn.deliverDM(&intake.Message{Text: "chatter"})
			}
		}
	}()
	defer close(stop)

	start := time.Now()
	_, err := ch.Await(context.Background(), hasAttachments, 50*time.Millisecond)
	if !errors.Is(err, intake.ErrAwaitTimeout) {
		t.Fatalf("Await error = %v, want ErrAwaitTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Await took %v; chatter appears to have reset the window", elapsed)
	}
}

func TestAwait_ConnectionClosed(t *testing.T) {
	conn := newTestConn(t, "s1")
	ch := &dmChannel{conn: conn}

	go func() {
		time.Sleep(10 * time.Millisecond)
		conn.Close()
	}()

	_, err := ch.Await(context.Background(), hasAttachments, time.Second)
	if err == nil || errors.Is(err, intake.ErrAwaitTimeout) {
		t.Fatalf("Await error = %v, want connection-closed error", err)
	}
}

func TestAwait_ContextCancelled(t *testing.T) {
	conn := newTestConn(t, "s1")
	ch := &dmChannel{conn: conn}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := ch.Await(ctx, hasAttachments, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Await error = %v, want context.Canceled", err)
	}
}

func TestDeliverDM_InboxOverflow(t *testing.T) {
	conn := newTestConn(t, "s1")

	for i := 0; i < dmInboxSize; i++ {
		if !conn.deliverDM(&intake.Message{Text: "x"}) {
			t.Fatalf("deliverDM failed at %d, inbox should hold %d", i, dmInboxSize)
		}
	}
	if conn.deliverDM(&intake.Message{Text: "overflow"}) {
		t.Error("deliverDM succeeded on full inbox, want drop")
	}
}

func TestOpen_UnknownReporter(t *testing.T) {
	g := NewGateway(NewConnectionManager(), nil, nil, intake.DefaultConfig())

	_, err := g.Open(context.Background(), "nobody")
	if !errors.Is(err, intake.ErrPermissionDenied) {
		t.Fatalf("Open error = %v, want ErrPermissionDenied", err)
	}
}

func TestOpen_ClosedConnection(t *testing.T) {
	conns := NewConnectionManager()
	conn := newTestConn(t, "s1")
	conns.Add(conn)
	conn.Close()

	g := NewGateway(conns, nil, nil, intake.DefaultConfig())
	_, err := g.Open(context.Background(), "s1")
	if !errors.Is(err, intake.ErrPermissionDenied) {
		t.Fatalf("Open error = %v, want ErrPermissionDenied", err)
	}
}

func TestOpen_DrainsStaleInbox(t *testing.T) {
	conns := NewConnectionManager()
	conn := newTestConn(t, "s1")
	conns.Add(conn)

	// Traffic from before the session starts must not leak into it.
	conn.deliverDM(&intake.Message{Attachments: []evidence.Item{{Filename: "stale.png"}}})

	g := NewGateway(conns, nil, nil, intake.DefaultConfig())
	ch, err := g.Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	_, err = ch.Await(context.Background(), hasAttachments, 20*time.Millisecond)
	if !errors.Is(err, intake.ErrAwaitTimeout) {
		t.Fatalf("Await error = %v, want ErrAwaitTimeout (stale message should be drained)", err)
	}
}

func TestConnectionManager(t *testing.T) {
	cm := NewConnectionManager()
	conn := newTestConn(t, "s1")

	cm.Add(conn)
	if cm.Count() != 1 {
		t.Fatalf("Count = %d, want 1", cm.Count())
	}
	if cm.Get("s1") != conn {
		t.Error("Get returned wrong connection")
	}
	if !cm.Remove("s1") {
		t.Error("Remove returned false for registered connection")
	}
	if cm.Remove("s1") {
		t.Error("Remove returned true for already-removed connection")
	}
	if cm.Get("s1") != nil {
		t.Error("Get returned a removed connection")
	}
}
