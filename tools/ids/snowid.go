package ids

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"
)

// Generator 雪花ID生成器：41 位毫秒时间戳 | 10 位节点 | 12 位序列。
type Generator struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64 // 0~1023
	seq      int64 // 0~4095
	lastTSMS int64
}

// New 创建一个生成器，nodeID 越界时回退为 1。
func New(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	return &Generator{
		epochMS: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		nodeID:  nodeID,
	}
}

// NodeIDFromString 把任意节点名映射到 0~1023，用于 NODE_ID 这类字符串配置。
func NodeIDFromString(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 && n <= 1023 {
		return n
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum32() % 1024)
}

func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

// ---------------- 内部方法 ----------------
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := time.Now().UnixMilli()
		if now < g.lastTSMS {
			// 时钟回拨，等待
			time.Sleep(time.Duration(g.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastTSMS {
			g.seq = (g.seq + 1) & 0xFFF // 12 bits
			if g.seq == 0 {
				// 序列溢出，等到下一毫秒
				for now <= g.lastTSMS {
					now = time.Now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastTSMS = now

		ts := (now - g.epochMS) & ((1 << 41) - 1)
		id := (ts << 22) | (g.nodeID << 12) | g.seq
		return id
	}
}
