package model

import (
	"context"
	"sync"
)

// LastBarStore 保存每个 symbol (full name) 最近一次发给图表的 bar
// 历史路径写入，实时路径先读再按时间条件写入，条目在 datafeed 生命周期内不清除
type LastBarStore interface {
	Get(ctx context.Context, key string) (Bar, bool, error)
	Set(ctx context.Context, key string, bar Bar) error
	// SetIfNewer 在没有缓存或 bar.Time >= 缓存时间时写入并返回 true，读和写对同一个 key 是原子的
	SetIfNewer(ctx context.Context, key string, bar Bar) (bool, error)
}

// Compile-time check
var _ LastBarStore = (*MemoryLastBarStore)(nil)

// MemoryLastBarStore 是进程内的默认实现
type MemoryLastBarStore struct {
	mu   sync.RWMutex
	bars map[string]Bar
}

func NewMemoryLastBarStore() *MemoryLastBarStore {
	return &MemoryLastBarStore{bars: make(map[string]Bar)}
}

func (s *MemoryLastBarStore) Get(_ context.Context, key string) (Bar, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bar, ok := s.bars[key]
	return copyBar(bar), ok, nil
}

func (s *MemoryLastBarStore) Set(_ context.Context, key string, bar Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bars[key] = copyBar(bar)
	return nil
}

func (s *MemoryLastBarStore) SetIfNewer(_ context.Context, key string, bar Bar) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.bars[key]; ok && bar.Time < cached.Time {
		return false, nil
	}
	s.bars[key] = copyBar(bar)
	return true, nil
}

// copyBar 断开 Volume 指针共享
func copyBar(b Bar) Bar {
	if b.Volume != nil {
		v := *b.Volume
		b.Volume = &v
	}
	return b
}
