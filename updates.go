package lexidx

import (
	"context"
	"sync"
)

// UpdateState tracks an indexing operation (IndexDocuments, ClearDocuments,
// Settings.Execute) through its lifecycle. Search and FacetDistribution run
// against read txns and never register here.
type UpdateState int

const (
	UpdatePending UpdateState = iota
	UpdateProcessing
	UpdateProcessed
	UpdateFailed
	UpdateAborted
)

func (s UpdateState) String() string {
	switch s {
	case UpdatePending:
		return "pending"
	case UpdateProcessing:
		return "processing"
	case UpdateProcessed:
		return "processed"
	case UpdateFailed:
		return "failed"
	case UpdateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// updateHandle is one registered operation. Cancellation is cooperative:
// IndexDocuments.Execute checks ctx before each document it decodes and
// passes it to its extraction pools, and nothing checks it inside a
// commit sequence. Settings.Execute and ClearDocuments.Execute do not
// check it.
type updateHandle struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	state  UpdateState
}

// updateRegistry is the index-wide table of in-flight and recently finished
// updates, keyed by a monotonically increasing id. Every IndexDocuments,
// ClearDocuments, and Settings.Execute call registers here before it touches
// the write txn, so abort_update and abort_pendings have something to act
// on regardless of which request type is running.
type updateRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	handles map[uint64]*updateHandle
}

func newUpdateRegistry() *updateRegistry {
	return &updateRegistry{handles: make(map[uint64]*updateHandle)}
}

// register allocates a new update id and its cancellation context. The
// caller owns calling start/finish as the operation progresses.
func (r *updateRegistry) register() *updateHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	h := &updateHandle{id: r.nextID, ctx: ctx, cancel: cancel, state: UpdatePending}
	r.handles[h.id] = h
	return h
}

func (r *updateRegistry) get(id uint64) *updateHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[id]
}

func (r *updateRegistry) setState(id uint64, state UpdateState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[id]; ok {
		h.state = state
	}
}

// AbortUpdate cancels a pending or in-progress update by id and marks it
// aborted. A running IndexDocuments notices before its next document or
// during extraction and returns ErrAborted. A no-op if id is unknown or
// already in a terminal state.
func (idx *Index) AbortUpdate(id uint64) bool {
	idx.updates.mu.Lock()
	defer idx.updates.mu.Unlock()
	h, ok := idx.updates.handles[id]
	if !ok {
		return false
	}
	switch h.state {
	case UpdateProcessed, UpdateFailed, UpdateAborted:
		return false
	}
	h.cancel()
	h.state = UpdateAborted
	return true
}

// AbortPendings cancels every update that has not yet started running,
// leaving whatever is currently processing to finish. Returns the ids it
// aborted.
func (idx *Index) AbortPendings() []uint64 {
	idx.updates.mu.Lock()
	defer idx.updates.mu.Unlock()
	var aborted []uint64
	for id, h := range idx.updates.handles {
		if h.state != UpdatePending {
			continue
		}
		h.cancel()
		h.state = UpdateAborted
		aborted = append(aborted, id)
	}
	return aborted
}

// UpdateStatus reports the current state of a registered update, if known.
func (idx *Index) UpdateStatus(id uint64) (UpdateState, bool) {
	idx.updates.mu.Lock()
	defer idx.updates.mu.Unlock()
	h, ok := idx.updates.handles[id]
	if !ok {
		return 0, false
	}
	return h.state, true
}
