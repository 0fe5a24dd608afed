package trace

import (
	"sync"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/syndtr/goleveldb/leveldb"

	"mkernel/kernel"
)

// flushEvery bounds the number of events buffered before a write.
const flushEvery = 256

// Recorder is a kernel.Observer that appends every event to a Store.
//
// Events are batched; Flush must be called once the run is over.
type Recorder struct {
	store *Store
	id    uuid.UUID

	mu    sync.Mutex
	seq   uint64
	batch *leveldb.Batch
	err   error
}

var _ kernel.Observer = (*Recorder)(nil)

// ID identifies the run in the store.
func (r *Recorder) ID() uuid.UUID { return r.id }

func (r *Recorder) Switched(from, to kernel.Pid) {
	r.add(Event{Kind: KindSwitched, From: from, To: to, Peer: kernel.NoPid})
}

func (r *Recorder) Blocked(pid kernel.Pid, st kernel.Status) {
	ev := Event{Kind: KindBlocked, From: pid, To: kernel.NoPid, State: st.State, Peer: kernel.NoPid}
	switch st.State {
	case kernel.StateSending:
		ev.Peer = st.To
	case kernel.StateReceiving:
		if id, ok := st.From.ID(); ok {
			ev.Peer = id
		}
	}
	r.add(ev)
}

func (r *Recorder) Woken(pid kernel.Pid) {
	r.add(Event{Kind: KindWoken, From: pid, To: kernel.NoPid, Peer: kernel.NoPid})
}

func (r *Recorder) Delivered(from, to kernel.Pid) {
	r.add(Event{Kind: KindDelivered, From: from, To: to, Peer: kernel.NoPid})
}

func (r *Recorder) Exited(pid kernel.Pid) {
	r.add(Event{Kind: KindExited, From: pid, To: kernel.NoPid, Peer: kernel.NoPid})
}

func (r *Recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}
	ev.Seq = r.seq
	r.seq++
	r.batch.Put(eventKey(r.id, ev.Seq), ev.encode())
	if r.batch.Len() >= flushEvery {
		r.err = r.writeLocked()
	}
}

// Flush writes buffered events and reports the first write error, if any.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.err = r.writeLocked()
	return r.err
}

// Count returns the number of events recorded so far.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *Recorder) writeLocked() error {
	if r.batch.Len() == 0 {
		return nil
	}
	if err := r.store.db.Write(r.batch, nil); err != nil {
		return errors.Wrap(err, "trace: write events")
	}
	r.batch.Reset()
	return nil
}
