package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-av/internal/bridge"
)

var _ bridge.Broadcaster = (*Hub)(nil)

// connectWebSocket serves srv over httptest and dials its WebSocket path.
// The initial snapshot event is read and returned.
func connectWebSocket(t *testing.T, srv *Server) (*websocket.Conn, WSMessage) {
	t.Helper()

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })

	snapshot := readMessage(t, ws)
	return ws, snapshot
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestWebSocket_Snapshot(t *testing.T) {
	srv := testServer(t, testEntities(), nil)
	_, snapshot := connectWebSocket(t, srv)

	if snapshot.Type != WSTypeEvent || snapshot.EventType != SnapshotChannel {
		t.Fatalf("first message = %+v, want snapshot event", snapshot)
	}
	list, ok := snapshot.Payload.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("snapshot payload = %#v, want 2 entities", snapshot.Payload)
	}
	if srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", srv.hub.ClientCount())
	}
}

func TestWebSocket_StateChangedByDefault(t *testing.T) {
	srv := testServer(t, testEntities(), nil)
	ws, _ := connectWebSocket(t, srv)

	srv.hub.Broadcast(bridge.StateChangedChannel, map[string]any{"entity_id": "lightpack-desk"})

	msg := readMessage(t, ws)
	if msg.Type != WSTypeEvent || msg.EventType != bridge.StateChangedChannel {
		t.Errorf("broadcast = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["entity_id"] != "lightpack-desk" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	srv := testServer(t, testEntities(), nil)
	ws, _ := connectWebSocket(t, srv)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{bridge.StateChangedChannel}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypeResponse || resp.ID != "unsub-1" {
		t.Fatalf("unsubscribe response = %+v", resp)
	}

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{"test.channel"}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// Not delivered: unsubscribed.
	srv.hub.Broadcast(bridge.StateChangedChannel, map[string]any{"entity_id": "x"})
	srv.hub.Broadcast("test.channel", map[string]string{"key": "value"})

	msg := readMessage(t, ws)
	if msg.EventType != "test.channel" {
		t.Errorf("event_type = %q, want test.channel", msg.EventType)
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	srv := testServer(t, testEntities(), nil)
	ws, _ := connectWebSocket(t, srv)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypePong || resp.ID != "p1" {
		t.Errorf("ping response = %+v", resp)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypeError {
		t.Errorf("invalid JSON response = %+v", resp)
	}

	if err := ws.WriteJSON(WSMessage{Type: "dance", ID: "d1"}); err != nil {
		t.Fatal(err)
	}
	if resp := readMessage(t, ws); resp.Type != WSTypeError || resp.ID != "d1" {
		t.Errorf("unknown type response = %+v", resp)
	}
}

func TestHub_UnregisterTwice(t *testing.T) {
	srv := testServer(t, testEntities(), nil)
	peer := newWSConn(srv.hub, nil, bridge.StateChangedChannel)

	srv.hub.register(peer)
	if !peer.enqueue([]byte("x")) {
		t.Fatal("enqueue on a live peer should succeed")
	}
	srv.hub.unregister(peer)
	srv.hub.unregister(peer)

	if srv.hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", srv.hub.ClientCount())
	}
	if peer.enqueue([]byte("y")) {
		t.Error("enqueue after unregister should be dropped")
	}
}

func TestHub_BroadcastSkipsUnsubscribed(t *testing.T) {
	srv := testServer(t, testEntities(), nil)
	state := newWSConn(srv.hub, nil, bridge.StateChangedChannel)
	other := newWSConn(srv.hub, nil, "other")
	srv.hub.register(state)
	srv.hub.register(other)

	srv.hub.Broadcast(bridge.StateChangedChannel, map[string]string{"entity_id": "a"})

	if len(state.outbox) != 1 {
		t.Errorf("subscribed peer queued %d frames, want 1", len(state.outbox))
	}
	if len(other.outbox) != 0 {
		t.Errorf("unsubscribed peer queued %d frames, want 0", len(other.outbox))
	}
}
