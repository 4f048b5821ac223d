package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PPRelay/global/config"
	"PPRelay/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*httptest.Server
	router *Router
	ws     *Server
}

func newTestServer(t *testing.T, conf config.WSConfig, obs ...Observer) *testServer {
	t.Helper()
	router := NewRouter(NewRegistry(), WithLogger(zap.NewNop()), WithObservers(obs...))
	srv := NewServer(router, conf, ids.New(3), zap.NewNop())

	engine := gin.New()
	engine.GET("/", srv.HandleWS)
	hs := httptest.NewServer(engine)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		hs.Close()
	})
	return &testServer{Server: hs, router: router, ws: srv}
}

func testWSConfig() config.WSConfig {
	cfg := config.Default().WS
	cfg.PingInterval = 0
	return cfg
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, msg string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expect(t *testing.T, c *websocket.Conn, want string) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v (wanted %s)", err, want)
	}
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func expectSilence(t *testing.T, c *websocket.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, got, err := c.ReadMessage(); err == nil {
		t.Fatalf("unexpected frame %s", got)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServerExampleScenario(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	a, b := ts.dial(t), ts.dial(t)

	send(t, a, `{"user_id":"alice"}`)
	expect(t, a, `{"status":"success","message":"User alice connected."}`)
	send(t, b, `{"user_id":"bob"}`)
	expect(t, b, `{"status":"success","message":"User bob connected."}`)

	msg := `{"id":"m1","name":"Alice","userIds":["bob","carol"],"messages":"hi","unread":0}`
	send(t, a, msg)
	expect(t, b, msg)
	expectSilence(t, a)

	_ = b.Close()
	waitFor(t, "bob to be unregistered", func() bool {
		_, ok := ts.router.Registry().Lookup("bob")
		return !ok
	})

	send(t, a, msg)
	// the connection stays usable afterwards
	send(t, a, `{}`)
	expect(t, a, `{"error":"Invalid JSON structure"}`)
}

func TestServerMalformedFrameKeepsConnection(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	c := ts.dial(t)

	send(t, c, `this is not json`)
	expect(t, c, `{"error":"Invalid JSON structure"}`)

	send(t, c, `{"user_id":"alice"}`)
	expect(t, c, `{"status":"success","message":"User alice connected."}`)
}

func TestServerBinaryFrames(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	c := ts.dial(t)

	if err := c.WriteMessage(websocket.BinaryMessage, []byte(`{"user_id":"bin"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, got, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Errorf("reply frame type = %d, want text", mt)
	}
	if string(got) != `{"status":"success","message":"User bin connected."}` {
		t.Errorf("reply = %s", got)
	}
}

func TestServerReadLimitEndsSession(t *testing.T) {
	conf := testWSConfig()
	conf.MaxMessageBytes = 64
	ts := newTestServer(t, conf)
	c := ts.dial(t)

	send(t, c, `{"user_id":"big"}`)
	expect(t, c, `{"status":"success","message":"User big connected."}`)

	send(t, c, `{"user_id":"`+strings.Repeat("x", 128)+`"}`)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Fatalf("expected close 1009, got %v", err)
	}
	waitFor(t, "identity cleanup", func() bool { return ts.router.Registry().Len() == 0 })
}

type panicObserver struct{}

func (panicObserver) OnRegister(context.Context, SessionEvent) { panic("observer exploded") }
func (panicObserver) OnRemove(context.Context, SessionEvent)   {}

func TestServerRecoversHandlerPanic(t *testing.T) {
	ts := newTestServer(t, testWSConfig(), panicObserver{})
	victim, bystander := ts.dial(t), ts.dial(t)

	send(t, victim, `{"user_id":"alice"}`)
	_ = victim.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := victim.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Fatalf("expected close 1011, got %v", err)
	}
	waitFor(t, "panicking session cleanup", func() bool { return ts.router.Registry().Len() == 0 })

	// other sessions are unaffected
	send(t, bystander, `[]`)
	expect(t, bystander, `{"error":"Invalid JSON structure"}`)
}

func TestServerKeepalive(t *testing.T) {
	conf := testWSConfig()
	conf.PingInterval = 20 * time.Millisecond
	conf.PongTimeout = 200 * time.Millisecond
	ts := newTestServer(t, conf)

	c := ts.dial(t)
	pings := make(chan struct{}, 16)
	c.SetPingHandler(func(data string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// reading drives the ping handler; replies keep the session alive past PongTimeout
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
	time.Sleep(300 * time.Millisecond)
	if ts.ws.Live() != 1 {
		t.Fatalf("Live = %d, session should survive while pongs flow", ts.ws.Live())
	}
}

func TestServerDropsSilentPeer(t *testing.T) {
	conf := testWSConfig()
	conf.PingInterval = 20 * time.Millisecond
	conf.PongTimeout = 100 * time.Millisecond
	ts := newTestServer(t, conf)

	c := ts.dial(t)
	send(t, c, `{"user_id":"sleepy"}`)
	// never read again, so no pongs are sent back
	waitFor(t, "silent peer to be dropped", func() bool { return ts.ws.Live() == 0 })
	if _, ok := ts.router.Registry().Lookup("sleepy"); ok {
		t.Error("dropped peer should be unregistered")
	}
}

func TestServerShutdownClosesClients(t *testing.T) {
	ts := newTestServer(t, testWSConfig())
	c := ts.dial(t)
	send(t, c, `{"user_id":"alice"}`)
	expect(t, c, `{"status":"success","message":"User alice connected."}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ts.ws.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	if ts.router.Registry().Len() != 0 {
		t.Error("registry should be empty after shutdown")
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("dial after shutdown should fail")
	}
}

func TestServerUpgradeOr(t *testing.T) {
	router := NewRouter(NewRegistry(), WithLogger(zap.NewNop()))
	srv := NewServer(router, testWSConfig(), nil, zap.NewNop())
	engine := gin.New()
	engine.GET("/", srv.UpgradeOr(func(c *gin.Context) { c.String(200, "probe") }))
	hs := httptest.NewServer(engine)
	defer hs.Close()

	resp, err := hs.Client().Get(hs.URL + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("plain GET status = %d", resp.StatusCode)
	}

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http")+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	send(t, c, `{"user_id":"shared"}`)
	expect(t, c, `{"status":"success","message":"User shared connected."}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
