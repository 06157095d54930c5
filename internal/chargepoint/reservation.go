package chargepoint

import (
	"sync"
	"time"

	"github.com/evstack/ocpp16/internal/ocpp16"
)

// Reservation is the connector-level reservation record named in spec.md
// §6's action set (ReserveNow/CancelReservation) but, per SPEC_FULL.md §3,
// given no data-model entry of its own in the distillation — added here
// following original_source's ReservationManager: a reservation blocks a
// connector for one idTag until expiryDate, GC'd the same way charging
// profiles are (see ProfileDB.Cleanup).
type Reservation struct {
	ID            int
	ConnectorID   int
	IdTag         string
	ParentIdTag   *string
	ExpiryDate    time.Time
}

// ReservationStore is the C9-adjacent persistence surface for
// reservations, mirroring AuthStore/ConfigStore's in-memory-default,
// Redis-optional shape (SPEC_FULL.md §3). A reservation is short-lived by
// nature (cleared on expiry or on use), so only the in-memory default is
// provided, and open reservations do not survive a restart.
type ReservationStore interface {
	Put(r Reservation)
	Get(connectorID int) (Reservation, bool)
	Delete(id int)
	DeleteByConnector(connectorID int)
	RemoveExpired(now time.Time)
}

// MemoryReservationStore is the default ReservationStore.
type MemoryReservationStore struct {
	mu    sync.Mutex
	byID  map[int]Reservation
	byCon map[int]int // connectorID -> reservationId
}

func NewMemoryReservationStore() *MemoryReservationStore {
	return &MemoryReservationStore{
		byID:  make(map[int]Reservation),
		byCon: make(map[int]int),
	}
}

func (s *MemoryReservationStore) Put(r Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = r
	s.byCon[r.ConnectorID] = r.ID
}

func (s *MemoryReservationStore) Get(connectorID int) (Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCon[connectorID]
	if !ok {
		return Reservation{}, false
	}
	r, ok := s.byID[id]
	return r, ok
}

func (s *MemoryReservationStore) Delete(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.byID[id]; ok {
		delete(s.byID, id)
		if s.byCon[r.ConnectorID] == id {
			delete(s.byCon, r.ConnectorID)
		}
	}
}

func (s *MemoryReservationStore) DeleteByConnector(connectorID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byCon[connectorID]; ok {
		delete(s.byID, id)
		delete(s.byCon, connectorID)
	}
}

func (s *MemoryReservationStore) RemoveExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.byID {
		if now.After(r.ExpiryDate) {
			delete(s.byID, id)
			if s.byCon[r.ConnectorID] == id {
				delete(s.byCon, r.ConnectorID)
			}
		}
	}
}

func (r *Runtime) handleReserveNow(req ocpp16.ReserveNowRequest) ocpp16.ReservationStatus {
	c, ok := r.Connector(req.ConnectorId)
	if !ok {
		return ocpp16.ReservationRejected
	}
	if c.Status == ocpp16.StatusFaulted {
		return ocpp16.ReservationFaulted
	}
	if c.Status == ocpp16.StatusUnavailable {
		return ocpp16.ReservationUnavailable
	}
	if c.Transaction != nil {
		return ocpp16.ReservationOccupied
	}
	if _, exists := r.reservations.Get(req.ConnectorId); exists {
		return ocpp16.ReservationOccupied
	}

	r.reservations.Put(Reservation{
		ID:          req.ReservationId,
		ConnectorID: req.ConnectorId,
		IdTag:       req.IdTag,
		ParentIdTag: req.ParentIdTag,
		ExpiryDate:  req.ExpiryDate.Time,
	})

	r.mu.Lock()
	if conn, ok := r.connectors[req.ConnectorId]; ok {
		conn.Status = ocpp16.StatusReserved
	}
	r.mu.Unlock()

	return ocpp16.ReservationAccepted
}

func (r *Runtime) handleCancelReservation(reservationID int) ocpp16.CancelReservationStatus {
	res, ok := r.reservationByID(reservationID)
	if !ok {
		return ocpp16.CancelReservationRejected
	}
	r.reservations.Delete(reservationID)

	r.mu.Lock()
	if conn, ok := r.connectors[res.ConnectorID]; ok && conn.Status == ocpp16.StatusReserved {
		conn.Status = ocpp16.StatusAvailable
	}
	r.mu.Unlock()

	return ocpp16.CancelReservationAccepted
}

func (r *Runtime) reservationByID(id int) (Reservation, bool) {
	r.mu.RLock()
	connectors := make([]int, 0, len(r.connectors))
	for cid := range r.connectors {
		connectors = append(connectors, cid)
	}
	r.mu.RUnlock()
	for _, cid := range connectors {
		if res, ok := r.reservations.Get(cid); ok && res.ID == id {
			return res, true
		}
	}
	return Reservation{}, false
}

// CleanupReservations removes expired reservations and restores their
// connectors to Available, mirroring ProfileDB.Cleanup. Like it, nothing in
// this module calls it on a timer.
func (r *Runtime) CleanupReservations(now time.Time) {
	r.reservations.RemoveExpired(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.connectors {
		if conn.Status != ocpp16.StatusReserved {
			continue
		}
		if _, ok := r.reservations.Get(id); !ok {
			conn.Status = ocpp16.StatusAvailable
		}
	}
}
