package centralsystem

import (
	"context"
	"sync"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// MemoryIdTagStore is a process-local IdTagStore: every idTag not
// explicitly registered is Accepted with no parent/expiry, which is
// enough to exercise the role runtime end to end without a real
// identity backend. Register narrows that default for specific tags
// (denylist/allowlist testing, parent-tag grouping).
type MemoryIdTagStore struct {
	mu      sync.RWMutex
	entries map[string]ocpp16.IdTagInfo
}

func NewMemoryIdTagStore() *MemoryIdTagStore {
	return &MemoryIdTagStore{entries: make(map[string]ocpp16.IdTagInfo)}
}

func (s *MemoryIdTagStore) Register(idTag string, info ocpp16.IdTagInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[idTag] = info
}

func (s *MemoryIdTagStore) Lookup(ctx context.Context, idTag string) (ocpp16.IdTagInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.entries[idTag]; ok {
		return info, nil
	}
	return ocpp16.IdTagInfo{Status: ocpp16.AuthAccepted}, nil
}

// MemoryTransactionStore assigns monotonically increasing transaction
// ids and tracks which are open, independent of any CP connection's
// lifetime (a CS restart aside, transaction ids must survive a CP's
// WebSocket reconnecting).
type MemoryTransactionStore struct {
	mu     sync.Mutex
	nextID int
	open   map[int]string // transactionId -> chargePointID
}

func NewMemoryTransactionStore() *MemoryTransactionStore {
	return &MemoryTransactionStore{nextID: 1, open: make(map[int]string)}
}

func (s *MemoryTransactionStore) Start(ctx context.Context, chargePointID string, req ocpp16.StartTransactionRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.open[id] = chargePointID
	return id, nil
}

func (s *MemoryTransactionStore) Stop(ctx context.Context, chargePointID string, req ocpp16.StopTransactionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, req.TransactionId)
	return nil
}
