// Package trace records scheduling and IPC events of a run into LevelDB.
package trace

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	r/<run id>        -> started (unix nanos, u64) + run name
//	e/<run id><seq>   -> encoded Event
const (
	runPrefix   = "r/"
	eventPrefix = "e/"
)

var ErrUnknownRun = errors.New("trace: unknown run")

// Store holds the events of any number of runs.
type Store struct {
	db *leveldb.DB
}

// Open opens or creates a store in the directory path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: 16,
		BlockCacheCapacity:     4 * opt.MiB,
		WriteBuffer:            1 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "trace: open %s", path)
	}
	return &Store{db: db}, nil
}

// OpenMemory returns a store that lives only as long as the process.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "trace: open memory store")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Run describes one recorded run.
type Run struct {
	ID      uuid.UUID
	Name    string
	Started time.Time
	Events  int
}

// NewRecorder registers a new run and returns the observer that records it.
func (s *Store) NewRecorder(name string) (*Recorder, error) {
	id := uuid.NewV4()
	meta := make([]byte, 8+len(name))
	binary.BigEndian.PutUint64(meta, uint64(time.Now().UnixNano()))
	copy(meta[8:], name)
	if err := s.db.Put(runKey(id), meta, nil); err != nil {
		return nil, errors.Wrap(err, "trace: register run")
	}
	return &Recorder{store: s, id: id, batch: new(leveldb.Batch)}, nil
}

// Runs lists the recorded runs, oldest first.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	it := s.db.NewIterator(util.BytesPrefix([]byte(runPrefix)), nil)
	for it.Next() {
		key, val := it.Key(), it.Value()
		id, err := uuid.FromBytes(key[len(runPrefix):])
		if err != nil {
			it.Release()
			return nil, errors.Wrap(err, "trace: run key")
		}
		if len(val) < 8 {
			it.Release()
			return nil, errors.Errorf("trace: run %s: short record", id)
		}
		runs = append(runs, Run{
			ID:      id,
			Name:    string(val[8:]),
			Started: time.Unix(0, int64(binary.BigEndian.Uint64(val))),
		})
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "trace: list runs")
	}

	for i := range runs {
		n, err := s.count(runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Events = n
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Started.Before(runs[j].Started) })
	return runs, nil
}

// Events returns the events of run id in the order they happened.
func (s *Store) Events(id uuid.UUID) ([]Event, error) {
	ok, err := s.db.Has(runKey(id), nil)
	if err != nil {
		return nil, errors.Wrap(err, "trace: lookup run")
	}
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRun, "%s", id)
	}

	var events []Event
	prefix := eventKeyPrefix(id)
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		seq := binary.BigEndian.Uint64(it.Key()[len(prefix):])
		ev, err := decodeEvent(seq, it.Value())
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "trace: read events")
	}
	return events, nil
}

// Delete removes run id and its events.
func (s *Store) Delete(id uuid.UUID) error {
	b := new(leveldb.Batch)
	b.Delete(runKey(id))
	it := s.db.NewIterator(util.BytesPrefix(eventKeyPrefix(id)), nil)
	for it.Next() {
		b.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return errors.Wrap(err, "trace: delete run")
	}
	return s.db.Write(b, nil)
}

func (s *Store) count(id uuid.UUID) (int, error) {
	n := 0
	it := s.db.NewIterator(util.BytesPrefix(eventKeyPrefix(id)), nil)
	for it.Next() {
		n++
	}
	it.Release()
	return n, errors.Wrap(it.Error(), "trace: count events")
}

func runKey(id uuid.UUID) []byte {
	return append([]byte(runPrefix), id.Bytes()...)
}

func eventKeyPrefix(id uuid.UUID) []byte {
	return append([]byte(eventPrefix), id.Bytes()...)
}

func eventKey(id uuid.UUID, seq uint64) []byte {
	k := make([]byte, 0, len(eventPrefix)+uuid.Size+8)
	k = append(k, eventPrefix...)
	k = append(k, id.Bytes()...)
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], seq)
	return append(k, s[:]...)
}
