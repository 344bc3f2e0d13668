package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaymesh/channelsdk/internal/channelapi"
	"github.com/relaymesh/channelsdk/internal/httptransport"
	"github.com/relaymesh/channelsdk/internal/wire"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	bo := NewBackoff(200*time.Millisecond, 5*time.Second)
	expected := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second, // capped
		5 * time.Second,
	}
	for i, want := range expected {
		if got := bo.Next(); got != want {
			t.Errorf("attempt %d: got %v, want %v", i, got, want)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	bo := NewBackoff(200*time.Millisecond, 5*time.Second)
	bo.Next()
	bo.Next()
	bo.Reset()
	if got := bo.Next(); got != 200*time.Millisecond {
		t.Errorf("after reset: got %v, want 200ms", got)
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := time.Now().Unix()
	snap := Snapshot{
		SessionID: "sess-1", ChannelID: "chan-1", AgentName: "alice",
		GlobalOffset: 3, LocalOffset: 3, ConnectionTime: now - 10, LastUsed: now,
	}
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok := store.Load("chan-1", "alice")
	if !ok {
		t.Fatal("expected snapshot to load")
	}
	if got.SessionID != "sess-1" || got.GlobalOffset != 3 {
		t.Errorf("loaded snapshot mismatch: %+v", got)
	}
}

func TestSnapshotStoreDiscardsStaleEntries(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	stale := Snapshot{
		SessionID: "sess-1", ChannelID: "chan-1", AgentName: "alice",
		ConnectionTime: 1, LastUsed: 1, // far in the past
	}
	if err := store.Save(stale); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := store.Load("chan-1", "alice"); ok {
		t.Fatal("expected stale snapshot to be discarded")
	}
}

func TestSnapshotStoreDiscardsInconsistentEntries(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	bad := Snapshot{ChannelID: "chan-1", AgentName: "alice"} // no sessionId
	if err := store.Save(bad); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := store.Load("chan-1", "alice"); ok {
		t.Fatal("expected inconsistent snapshot to be discarded")
	}
}

// fakeService emulates just enough of the remote messaging service for
// connect + one pull cycle.
type fakeService struct {
	mu        sync.Mutex
	pullCalls atomic.Int32
	disconnectCalls atomic.Int32
	rejectAfterFirstPull bool
}

func (f *fakeService) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/connect":
			writeEnvelope(t, w, "success", wire.ConnectData{
				Status: "success", SessionID: "sess-1", ChannelID: "chan-1",
				GlobalOffset: 0, LocalOffset: 0, ConnectionTime: 1000,
			})
		case "/pull":
			n := f.pullCalls.Add(1)
			if f.rejectAfterFirstPull && n > 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if n == 1 {
				writeEnvelope(t, w, "success", wire.PullData{
					Events: []wire.EventMessage{{From: "bob", To: "*", Type: wire.EventChatText, Content: "hi"}},
				})
				return
			}
			writeEnvelope(t, w, "success", wire.PullData{})
		case "/disconnect":
			f.disconnectCalls.Add(1)
			writeEnvelope(t, w, "success", wire.DisconnectData{Status: "success"})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}
}

func writeEnvelope(t *testing.T, w http.ResponseWriter, status string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	json.NewEncoder(w).Encode(map[string]any{"status": status, "data": json.RawMessage(raw)})
}

func TestConnectAndDeliverEvents(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	api := channelapi.New(httptransport.New(srv.URL, ""), nil, "")
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	sess := New(api, store)

	received := make(chan []wire.EventMessage, 1)
	sess.OnEvents(func(ctx context.Context, events []wire.EventMessage) {
		received <- events
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Connect(ctx, Config{ChannelID: "chan-1", AgentName: "alice"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if sess.State() != Connected {
		t.Fatalf("state = %s, want connected", sess.State())
	}

	select {
	case events := <-received:
		if len(events) != 1 || events[0].Content != "hi" {
			t.Fatalf("unexpected events delivered: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered events")
	}

	if !sess.Disconnect(context.Background()) {
		t.Fatal("expected disconnect to report success")
	}
	if sess.State() != Closed {
		t.Fatalf("state = %s, want closed", sess.State())
	}

	if !sess.Disconnect(context.Background()) {
		t.Fatal("expected a second disconnect on an already-closed session to also report success")
	}
	if svc.disconnectCalls.Load() != 1 {
		t.Fatalf("expected exactly one /disconnect call to the server, got %d", svc.disconnectCalls.Load())
	}
}

func TestReconnectOnUnknownSession(t *testing.T) {
	svc := &fakeService{rejectAfterFirstPull: true}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	api := channelapi.New(httptransport.New(srv.URL, ""), nil, "")
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	sess := New(api, store)

	var states []State
	var mu sync.Mutex
	sess.OnStateChange(func(from, to State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sess.Connect(ctx, Config{ChannelID: "chan-1", AgentName: "alice"}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		seen := false
		for _, st := range states {
			if st == Reconnecting {
				seen = true
			}
		}
		mu.Unlock()
		if seen {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	sess.Disconnect(context.Background())

	mu.Lock()
	defer mu.Unlock()
	var sawReconnecting bool
	for _, st := range states {
		if st == Reconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Fatalf("expected a Reconnecting transition, got %v", states)
	}
}
