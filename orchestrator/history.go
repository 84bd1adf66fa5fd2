package orchestrator

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vultisig/earn/types"
)

const defaultHistorySize = 32

// History is the bounded recent-transaction log. Append-only from the
// orchestrator's point of view; the core never reads it back, it exists for
// the shell's "recent activity" surface.
type History struct {
	mu    sync.Mutex
	cache *lru.Cache[string, types.TxRecord]
	now   func() time.Time
}

func NewHistory(size int) (*History, error) {
	if size <= 0 {
		size = defaultHistorySize
	}
	cache, err := lru.New[string, types.TxRecord](size)
	if err != nil {
		return nil, err
	}
	return &History{
		cache: cache,
		now:   time.Now,
	}, nil
}

func (h *History) Append(hash, description string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache.Add(hash, types.TxRecord{
		Hash:        hash,
		Description: description,
		Timestamp:   h.now().Unix(),
	})
}

// Recent returns records newest first.
func (h *History) Recent() []types.TxRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	keys := h.cache.Keys()
	records := make([]types.TxRecord, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if rec, ok := h.cache.Peek(keys[i]); ok {
			records = append(records, rec)
		}
	}
	return records
}
