package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"leadgen-workers/internal/common/logger"
)

const (
	DefaultHistorySize = 10
	DefaultHistoryKey  = "webhook:diagnostics:history"
)

// History keeps the most recent reports. Recent returns them oldest first.
type History interface {
	Append(ctx context.Context, report Report) error
	Recent(ctx context.Context, n int) ([]Report, error)
}

// MemoryHistory is a bounded ring buffer.
type MemoryHistory struct {
	mu    sync.Mutex
	buf   []Report
	next  int
	count int
}

func NewMemoryHistory(size int) *MemoryHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &MemoryHistory{buf: make([]Report, size)}
}

func (h *MemoryHistory) Append(_ context.Context, report Report) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = report
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, n int) ([]Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]Report, 0, n)
	start := (h.next - n + len(h.buf)) % len(h.buf)
	for i := 0; i < n; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out, nil
}

// RedisHistory stores reports as a capped list, newest at the head.
type RedisHistory struct {
	client redis.Cmdable
	key    string
	size   int
	logger logger.Logger
}

func NewRedisHistory(client redis.Cmdable, key string, size int, log logger.Logger) *RedisHistory {
	if key == "" {
		key = DefaultHistoryKey
	}
	if size <= 0 {
		size = DefaultHistorySize
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &RedisHistory{client: client, key: key, size: size, logger: log}
}

func (h *RedisHistory) Append(ctx context.Context, report Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, h.key, data)
		pipe.LTrim(ctx, h.key, 0, int64(h.size-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("append diagnostics history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, n int) ([]Report, error) {
	if n <= 0 || n > h.size {
		n = h.size
	}
	items, err := h.client.LRange(ctx, h.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read diagnostics history: %w", err)
	}
	out := make([]Report, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var r Report
		if err := json.Unmarshal([]byte(items[i]), &r); err != nil {
			h.logger.Warn("skipping undecodable diagnostics history entry", map[string]interface{}{
				"key":      h.key,
				"position": i,
				"error":    err.Error(),
			})
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
