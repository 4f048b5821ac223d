package health

import (
	"net/http"

	"PPRelay/middleware"

	"github.com/gin-gonic/gin"
)

const DefaultBody = "WebSocket server is running"

// Handler answers liveness probes with a static body.
func Handler(body string) gin.HandlerFunc {
	if body == "" {
		body = DefaultBody
	}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Status(http.StatusOK)
			return
		}
		c.String(http.StatusOK, body)
	}
}

// Mount registers GET / and HEAD / on r.
func Mount(r gin.IRoutes, body string) {
	h := Handler(body)
	r.GET("/", h)
	r.HEAD("/", h)
}

// NewEngine builds the standalone health engine.
func NewEngine(body string, mids *middleware.MiddlewareManager) *gin.Engine {
	r := gin.New()
	if mids != nil {
		mids.Install(r)
	}
	Mount(r, body)
	return r
}
