package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kstaniek/go-mcmcan/internal/board"
	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/gateway"
	"github.com/kstaniek/go-mcmcan/internal/hub"
	"github.com/kstaniek/go-mcmcan/internal/logging"
)

type fakeGateway struct {
	mu     sync.Mutex
	frames []can.Frame
	err    error
	hub    *hub.Hub[gateway.Event]
}

func newFake() *fakeGateway { return &fakeGateway{hub: hub.New[gateway.Event]()} }

func (g *fakeGateway) Status() gateway.Status {
	return gateway.Status{Profile: "test", Nodes: []gateway.NodeStatus{{ID: 0, State: "active"}, {ID: 1, State: "warning", TEC: 96}}}
}

func (g *fakeGateway) Layout() []board.Allocation {
	return []board.Allocation{{Node: 0, Kind: "tx", Offset: 0, Elements: 4, Bytes: 64}}
}

func (g *fakeGateway) Submit(f can.Frame) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.frames = append(g.frames, f)
	return nil
}

func (g *fakeGateway) Hub() *hub.Hub[gateway.Event] { return g.hub }

func (g *fakeGateway) submitted() []can.Frame {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]can.Frame(nil), g.frames...)
}

func newTestServer(t *testing.T, g Gateway, opts ...Option) *httptest.Server {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	ts := httptest.NewServer(New(g, opts...).Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestStatusEndpoints(t *testing.T) {
	ts := newTestServer(t, newFake(), WithProfile(board.Default()))

	var st gateway.Status
	if code := getJSON(t, ts.URL+"/api/status", &st); code != http.StatusOK || st.Profile != "test" || len(st.Nodes) != 2 {
		t.Fatalf("status %d %+v", code, st)
	}
	var n gateway.NodeStatus
	if code := getJSON(t, ts.URL+"/api/nodes/1", &n); code != http.StatusOK || n.TEC != 96 {
		t.Fatalf("node 1: %d %+v", code, n)
	}
	if code := getJSON(t, ts.URL+"/api/nodes/3", nil); code != http.StatusNotFound {
		t.Fatalf("node 3: %d", code)
	}
	if code := getJSON(t, ts.URL+"/api/nodes/x", nil); code != http.StatusBadRequest {
		t.Fatalf("node x: %d", code)
	}
	var layout []board.Allocation
	if code := getJSON(t, ts.URL+"/api/layout", &layout); code != http.StatusOK || len(layout) != 1 || layout[0].Elements != 4 {
		t.Fatalf("layout %d %+v", code, layout)
	}
	var p board.Profile
	if code := getJSON(t, ts.URL+"/api/profile", &p); code != http.StatusOK || len(p.Nodes) != 2 {
		t.Fatalf("profile %d %+v", code, p)
	}
}

func TestProfileNotConfigured(t *testing.T) {
	ts := newTestServer(t, newFake())
	if code := getJSON(t, ts.URL+"/api/profile", nil); code != http.StatusNotFound {
		t.Fatalf("profile: %d", code)
	}
	if code := getJSON(t, ts.URL+"/metrics", nil); code != http.StatusNotFound && code != http.StatusMethodNotAllowed {
		t.Fatalf("metrics without WithMetrics: %d", code)
	}
}

func post(t *testing.T, url, body string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestPostFrame(t *testing.T) {
	g := newFake()
	ts := newTestServer(t, g)
	if code := post(t, ts.URL+"/api/frames", `{"id":291,"data":"0102"}`); code != http.StatusAccepted {
		t.Fatalf("post: %d", code)
	}
	got := g.submitted()
	if len(got) != 1 || got[0].ID() != can.StandardID(0x123) || got[0].Len != 2 || got[0].Data[1] != 2 {
		t.Fatalf("submitted %v", got)
	}
	for _, body := range []string{
		`{"data":"01"}`,
		`{"id":2048}`,
		`{"id":1,"data":"zz"}`,
		`{"id":1,"data":"010203040506070809"}`,
		`not json`,
	} {
		if code := post(t, ts.URL+"/api/frames", body); code != http.StatusBadRequest {
			t.Errorf("%s: %d, want 400", body, code)
		}
	}
	g.mu.Lock()
	g.err = gateway.ErrQueueFull
	g.mu.Unlock()
	if code := post(t, ts.URL+"/api/frames", `{"id":1}`); code != http.StatusServiceUnavailable {
		t.Fatalf("queue full: %d", code)
	}
}

func TestFramePayloadRemoteAndExtended(t *testing.T) {
	id, n := uint32(0x1ABCDEF0), uint8(3)
	p := FramePayload{ID: &id, Extended: true, Remote: true, Length: &n}
	f, err := p.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if !f.Remote() || f.Len != 3 || f.ID() != can.ExtendedID(0x1ABCDEF0) {
		t.Fatalf("frame %s", f)
	}
	back := payloadOf(f)
	if *back.ID != id || !back.Extended || !back.Remote || back.Data != "" {
		t.Fatalf("payload %+v", back)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *hub.Hub[gateway.Event], n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", h.Count(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWebSocketStream(t *testing.T) {
	g := newFake()
	ts := newTestServer(t, g)
	conn := dial(t, ts)
	waitClients(t, g.hub, 1)

	f, _ := can.NewFrame(can.StandardID(0x700), []byte{0, 0, 0, 7})
	g.hub.Broadcast(gateway.Event{Time: time.Now(), Source: gateway.SourceNode, Node: 0, Frame: f})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev EventPayload
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Source != gateway.SourceNode || *ev.Frame.ID != 0x700 || ev.Frame.Data != "00000007" {
		t.Fatalf("event %+v", ev)
	}

	if err := conn.WriteJSON(map[string]any{"id": 0x10, "data": "aa"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var rep ReplyPayload
	if err := conn.ReadJSON(&rep); err != nil || !rep.Accepted {
		t.Fatalf("reply %+v err %v", rep, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := conn.ReadJSON(&rep); err != nil || rep.Accepted || rep.Error == "" {
		t.Fatalf("malformed reply %+v err %v", rep, err)
	}
	if got := g.submitted(); len(got) != 1 || got[0].Data[0] != 0xAA {
		t.Fatalf("submitted %v", got)
	}

	conn.Close()
	waitClients(t, g.hub, 0)
}

func TestWebSocketMaxClients(t *testing.T) {
	g := newFake()
	g.hub.MaxClients = 1
	ts := newTestServer(t, g)
	dial(t, ts)
	waitClients(t, g.hub, 1)
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err == nil {
		t.Fatal("second client accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("response %v", resp)
	}
}
