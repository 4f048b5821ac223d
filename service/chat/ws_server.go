package chat

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"PPRelay/global/config"
	"PPRelay/logger"
	"PPRelay/middleware"
	"PPRelay/tools/ids"
	"PPRelay/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server accepts websocket clients and runs one receive loop per
// connection, handing every frame to the Router.
type Server struct {
	router   *Router
	ids      *ids.Generator
	upgrader websocket.Upgrader
	conf     config.WSConfig
	log      *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	live    map[string]*WsConn // snowID -> conn
	closing bool
}

func NewServer(router *Router, conf config.WSConfig, gen *ids.Generator, log *zap.Logger) *Server {
	safe.MustNotNil(router, "router")
	if gen == nil {
		gen = ids.New(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		router: router,
		ids:    gen,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  conf.ReadBufferSize,
			WriteBufferSize: conf.WriteBufferSize,
			CheckOrigin:     middleware.CheckOrigin(conf.AllowedOrigins),
		},
		conf:    conf,
		log:     logger.Or(log),
		baseCtx: ctx,
		cancel:  cancel,
		live:    make(map[string]*WsConn),
	}
}

// HandleWS upgrades the request and serves the connection until it ends.
func (s *Server) HandleWS(c *gin.Context) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败（upgrader 已写回 HTTP 错误）
		s.log.Info("[HandleWS] upgrade websocket error",
			zap.String("remote", c.ClientIP()), zap.Error(err))
		return
	}
	s.serve(ws, c.ClientIP())
}

func (s *Server) serve(ws *websocket.Conn, remote string) {
	conn := NewWsConn(s.ids.NextString(), ws, s.conf.WriteTimeout)
	sess := NewSession(conn, remote)
	if !s.track(conn) {
		_ = conn.CloseWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(conn)

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer func() {
		cancel()
		s.router.Close(context.Background(), sess)
		_ = conn.Close()
	}()

	log := s.log.With(zap.String("session", sess.ID), zap.String("remote", remote))
	log.Debug("[WS] connection opened")

	if s.conf.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.conf.MaxMessageBytes)
	}
	if s.conf.PingInterval > 0 {
		s.startKeepalive(ctx, conn, log)
	}

	// ---- 读循环：每帧交给 Router；读错误或回执失败即退出 ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			logReadError(log, rerr)
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		s.extendReadDeadline(ws)

		var herr error
		if perr := safe.Call(func() { herr = s.router.Handle(ctx, sess, data) }); perr != nil {
			log.Error("[WS] panic while handling frame", zap.Error(perr), zap.Int("len", len(data)))
			_ = conn.CloseWith(websocket.CloseInternalServerErr, "internal error")
			return
		}
		if herr != nil {
			log.Info("[WS] ending session", zap.Error(herr))
			return
		}
	}
}

// startKeepalive pings on every interval; each pong pushes the read deadline
// out by PongTimeout, so a silent peer fails the blocked read.
func (s *Server) startKeepalive(ctx context.Context, conn *WsConn, log *zap.Logger) {
	ws := conn.Conn
	s.extendReadDeadline(ws)
	ws.SetPongHandler(func(string) error {
		s.extendReadDeadline(ws)
		return nil
	})

	go func() {
		t := time.NewTicker(s.conf.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-conn.Done():
				return
			case <-t.C:
				if err := conn.Ping(); err != nil {
					log.Debug("[WS] ping failed", zap.Error(err))
					return
				}
			}
		}
	}()
}

func (s *Server) extendReadDeadline(ws *websocket.Conn) {
	if s.conf.PingInterval <= 0 {
		return
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.conf.PongTimeout))
}

func logReadError(log *zap.Logger, err error) {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		log.Info("[WS] peer closed", zap.Error(err))
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		log.Info("[WS] read timeout", zap.Error(err))
	} else {
		log.Info("[WS] read err", zap.Error(err))
	}
}

func (s *Server) track(c *WsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.live[c.SnowID] = c
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *WsConn) {
	s.mu.Lock()
	delete(s.live, c.SnowID)
	s.mu.Unlock()
	s.wg.Done()
}

// Live returns the number of open connections.
func (s *Server) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown refuses new connections, sends a going-away close to every open
// one, and waits for their receive loops to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*WsConn, 0, len(s.live))
	for _, c := range s.live {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.cancel()
	for _, c := range conns {
		_ = c.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpgradeOr serves websocket handshakes with HandleWS and hands every other
// request to fallback, so one path can carry both the relay and a probe.
func (s *Server) UpgradeOr(fallback gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			s.HandleWS(c)
			return
		}
		fallback(c)
	}
}
