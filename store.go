package arbor

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/arborcrdt/arbor/internal/clock"
	"github.com/arborcrdt/arbor/internal/telemetry"
)

// Observer is notified after a field is written, regardless of whether the
// incoming operation won the LWW comparison. old is the prior value for the
// field (ok is false if there was none, or the prior op was a tombstone).
type Observer func(op Operation, origin Origin, old int64, oldOK bool)

// OpStore is the per-field LWW register store: the raw CRDT primitive every
// other component in this module is built on. One field is retained per
// (entity_id, field_key): the current LWW winner.
type OpStore struct {
	mu        sync.Mutex
	peerID    string
	clock     clock.Source
	fields    map[fieldKey]Operation
	observers []Observer
	log       telemetry.Logger
}

// NewOpStore creates an OpStore for the given peer, using src as the
// timestamp source for local writes.
func NewOpStore(peerID string, src clock.Source, logger telemetry.Logger) *OpStore {
	return &OpStore{
		peerID: peerID,
		clock:  src,
		fields: make(map[fieldKey]Operation),
		log:    logger,
	}
}

// Subscribe registers an observer. Observers fire in registration order.
func (s *OpStore) Subscribe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

// Get returns the current value for (entityID, fieldKey). ok is false if the
// field has never been written or its current winner is a tombstone.
func (s *OpStore) Get(entityID, key string) (value int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, exists := s.fields[fieldKey{EntityID: entityID, FieldKey: key}]
	if !exists || op.Deleted {
		return 0, false
	}
	return op.Value, true
}

// Set writes value locally. The timestamp is advanced to
// max(now, existing.timestamp+1) so local writes always dominate the
// field's current state (an unwritten field counts as timestamp 0, so the
// result is always positive), then the resulting operation is applied.
func (s *OpStore) Set(entityID, key string, value int64) (Operation, error) {
	return s.writeLocal(entityID, key, value, true, false)
}

// Delete writes a tombstone locally, under the same timestamp discipline as
// Set.
func (s *OpStore) Delete(entityID, key string) (Operation, error) {
	return s.writeLocal(entityID, key, 0, false, true)
}

func (s *OpStore) writeLocal(entityID, key string, value int64, hasValue, deleted bool) (Operation, error) {
	s.mu.Lock()
	now := s.clock.NowMillis()
	existing := s.fields[fieldKey{EntityID: entityID, FieldKey: key}]
	ts := now
	if existing.Timestamp+1 > ts {
		ts = existing.Timestamp + 1
	}
	op := Operation{
		EntityID:  entityID,
		FieldKey:  key,
		Value:     value,
		HasValue:  hasValue,
		Deleted:   deleted,
		PeerID:    s.peerID,
		Timestamp: ts,
	}
	s.mu.Unlock()

	if err := s.Apply(op, OriginLocal); err != nil {
		return Operation{}, err
	}
	return op, nil
}

// Apply merges op into field state per the LWW total order, then notifies
// observers unconditionally (win or lose), passing origin through so
// UndoRedo can ignore remote writes.
func (s *OpStore) Apply(op Operation, origin Origin) error {
	if err := validate(op); err != nil {
		return err
	}

	s.mu.Lock()
	key := fieldKey{EntityID: op.EntityID, FieldKey: op.FieldKey}
	existing, exists := s.fields[key]
	oldValue, oldOK := int64(0), false
	if exists && !existing.Deleted {
		oldValue, oldOK = existing.Value, true
	}

	won := !exists || greater(op, existing)
	if won {
		s.fields[key] = op
	}
	observers := append([]Observer(nil), s.observers...)
	logger := s.log
	s.mu.Unlock()

	logger.WithFields(log.Fields{
		"op":     op.String(),
		"origin": origin.String(),
		"won":    won,
	}).Debug("arbor: operation applied")

	for _, obs := range observers {
		obs(op, origin, oldValue, oldOK)
	}
	return nil
}

// validate rejects malformed operations and operations that would give the
// root node a parent, per the error handling design.
func validate(op Operation) error {
	if op.PeerID == "" || op.Timestamp <= 0 {
		return newOpError(ErrInvalidOp, op)
	}
	if op.EntityID == RootID {
		return newOpError(ErrRootMutation, op)
	}
	return nil
}
