package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// MiddlewareManager 可以自由注册/注销中间件
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

// NewManager 创建新的实例
func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

// Add 注册一个中间件
func (m *MiddlewareManager) Add(h ...gin.HandlerFunc) *MiddlewareManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h...)
	return m
}

// Clear 清空全部中间件
func (m *MiddlewareManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
}

// Handlers 返回当前中间件的快照
func (m *MiddlewareManager) Handlers() []gin.HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]gin.HandlerFunc{}, m.mids...) // 拷贝一份快照
}

// Install 把快照挂载到 Engine / RouterGroup 上；之后的 Add 不影响已挂载的路由。
func (m *MiddlewareManager) Install(r gin.IRoutes) {
	r.Use(m.Handlers()...)
}
