package channelapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaymesh/channelsdk/internal/httptransport"
	"github.com/relaymesh/channelsdk/internal/wire"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) (*API, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	httpClient := httptransport.New(srv.URL, "dev-key")
	return New(httpClient, nil, ""), srv
}

func TestConnectDerivesChannelIDFromPassword(t *testing.T) {
	var sawCreateChannel, sawConnect bool
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/create-channel":
			sawCreateChannel = true
			var req wire.CreateChannelRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.ChannelName != "room-1" || req.ChannelPassword == "" {
				t.Errorf("unexpected create-channel request: %+v", req)
			}
			writeEnvelope(w, "success", wire.CreateChannelData{ChannelID: "chan-1"})
		case "/connect":
			sawConnect = true
			var req wire.ConnectRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.ChannelID == nil || *req.ChannelID == "" {
				t.Errorf("expected derived channelId on connect request, got %+v", req)
			}
			writeEnvelope(w, "success", wire.ConnectData{
				Status: "success", SessionID: "sess-1", ChannelID: *req.ChannelID,
				GlobalOffset: 0, LocalOffset: 0, ConnectionTime: 1000,
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	data, ok := api.Connect(context.Background(), ConnectConfig{
		ChannelName:     "room-1",
		ChannelPassword: "hunter2",
		AgentName:       "alice",
		APIKeyScope:     wire.ScopePublic,
	})
	if !ok {
		t.Fatalf("expected connect to succeed, got %+v", data)
	}
	if data.SessionID != "sess-1" {
		t.Errorf("sessionId = %q, want sess-1", data.SessionID)
	}
	if !sawCreateChannel || !sawConnect {
		t.Error("expected both create-channel and connect to be called")
	}
}

func TestConnectSkipsCreateChannelWhenChannelIDProvided(t *testing.T) {
	var sawCreateChannel bool
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/create-channel":
			sawCreateChannel = true
			writeEnvelope(w, "success", wire.CreateChannelData{ChannelID: "chan-1"})
		case "/connect":
			writeEnvelope(w, "success", wire.ConnectData{Status: "success", SessionID: "sess-1", ChannelID: "chan-1"})
		}
	})

	_, ok := api.Connect(context.Background(), ConnectConfig{
		ChannelID: "chan-1",
		AgentName: "alice",
	})
	if !ok {
		t.Fatal("expected connect to succeed")
	}
	if sawCreateChannel {
		t.Error("did not expect create-channel to be called when channelId is provided")
	}
}

func TestPushReturnsFalseOnNon2xx(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if api.Push(context.Background(), "sess-1", wire.PushRequest{Type: wire.EventChatText, To: "*", Content: "hi"}) {
		t.Fatal("expected push to fail on 500")
	}
}

func TestPullClassifiesUnknownSessionOn401(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	result := api.Pull(context.Background(), "sess-1", wire.ReceiveConfig{})
	if !result.UnknownSession {
		t.Fatal("expected a 401 to classify as unknown session")
	}
}

func TestPullMergesEventsAndMessages(t *testing.T) {
	api, _ := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{
			"events":[{"timestamp":1,"from":"a","to":"*","type":"CHAT_TEXT","content":"one"}],
			"messages":[{"timestamp":2,"from":"b","to":"*","type":"CHAT_TEXT","content":"two"}],
			"nextGlobalOffset":5,
			"nextLocalOffset":5
		}}`))
	})
	result := api.Pull(context.Background(), "sess-1", wire.ReceiveConfig{GlobalOffset: 0, LocalOffset: 0})
	if !result.Ok {
		t.Fatalf("expected ok pull result, got %+v", result)
	}
	if len(result.Data.Events) != 2 {
		t.Fatalf("expected 2 merged events, got %d", len(result.Data.Events))
	}
	if result.Data.NextGlobalOffset == nil || *result.Data.NextGlobalOffset != 5 {
		t.Fatalf("expected nextGlobalOffset=5, got %v", result.Data.NextGlobalOffset)
	}
}

func TestDisconnectIsBestEffort(t *testing.T) {
	api, srv := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv.Close() // force a transport-level failure too
	if api.Disconnect(context.Background(), "sess-1") {
		t.Fatal("expected disconnect to report false on failure, not panic or error")
	}
}

func writeEnvelope(w http.ResponseWriter, status string, data any) {
	raw, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "data": json.RawMessage(raw)})
}
