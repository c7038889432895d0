// Package refstore is the append-only reference-mapping layer: per
// uid, it holds the stable value → surrogate assignment and the
// per-entity temporal shift, and guarantees that concurrent table
// pipelines appending to (or reading) the same uid never race. One
// mutex per uid, lazily created, so independent uids proceed
// concurrently instead of serializing behind a single store-wide lock.
package refstore

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/ioadapter"
)

// Store is the reference-mapping layer for one run. It lazily loads
// each uid's frames from backend on first touch and keeps them
// resident for the run's duration, flushing on Save.
type Store struct {
	backend ioadapter.RefStore

	mu     sync.Mutex // protects the maps below, not the frames themselves
	locks  map[string]*sync.Mutex
	id     map[string]*identifier.Frame
	shift  map[string]*identifier.Frame
	dirty  map[string]bool
}

// New wraps a backend RefStore.
func New(backend ioadapter.RefStore) *Store {
	return &Store{
		backend: backend,
		locks:   make(map[string]*sync.Mutex),
		id:      make(map[string]*identifier.Frame),
		shift:   make(map[string]*identifier.Frame),
		dirty:   make(map[string]bool),
	}
}

func (s *Store) lockFor(uid string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[uid]
	if !ok {
		l = &sync.Mutex{}
		s.locks[uid] = l
	}
	return l
}

// Load pulls a uid's ID and shift frames from the backend into memory,
// if not already loaded. Safe to call repeatedly; idempotent.
func (s *Store) Load(ctx context.Context, uid string) error {
	lock := s.lockFor(uid)
	lock.Lock()
	defer lock.Unlock()
	return s.loadLocked(ctx, uid)
}

func (s *Store) loadLocked(ctx context.Context, uid string) error {
	s.mu.Lock()
	_, haveID := s.id[uid]
	s.mu.Unlock()
	if haveID {
		return nil
	}

	idFrame, err := s.backend.ReadFrame(ctx, uid, ioadapter.FrameKindID)
	if err != nil {
		return fmt.Errorf("load id frame for uid %q: %w", uid, err)
	}
	shiftFrame, err := s.backend.ReadFrame(ctx, uid, ioadapter.FrameKindShift)
	if err != nil {
		return fmt.Errorf("load shift frame for uid %q: %w", uid, err)
	}

	s.mu.Lock()
	s.id[uid] = idFrame
	s.shift[uid] = shiftFrame
	s.mu.Unlock()
	return nil
}

// AppendOrLookup returns the dense positive-integer surrogate for
// value under uid, assigning the next integer in first-seen order if
// value hasn't been seen before.
func (s *Store) AppendOrLookup(ctx context.Context, uid, value string) (string, error) {
	lock := s.lockFor(uid)
	lock.Lock()
	defer lock.Unlock()

	if err := s.loadLocked(ctx, uid); err != nil {
		return "", err
	}

	s.mu.Lock()
	frame := s.id[uid]
	s.mu.Unlock()

	if row, ok := frame.Lookup(value); ok {
		return row.Deid, nil
	}

	next := frame.MaxDeid() + 1
	deid := fmt.Sprintf("%d", next)
	frame.Append(identifier.Row{Value: value, Deid: deid})

	s.mu.Lock()
	s.dirty[uid] = true
	s.mu.Unlock()
	return deid, nil
}

// LookupDeid reverses a surrogate back to its original value. Used by
// the reverse pipeline.
func (s *Store) LookupDeid(ctx context.Context, uid, deid string) (string, bool, error) {
	lock := s.lockFor(uid)
	lock.Lock()
	defer lock.Unlock()

	if err := s.loadLocked(ctx, uid); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	frame := s.id[uid]
	s.mu.Unlock()

	row, ok := frame.LookupByDeid(deid)
	return row.Value, ok, nil
}

// ShiftMethod names one of the seven per-entity temporal shift
// strategies.
type ShiftMethod string

const (
	ShiftByYears  ShiftMethod = "shift_by_years"
	ShiftByMonths ShiftMethod = "shift_by_months"
	ShiftByWeeks  ShiftMethod = "shift_by_weeks"
	ShiftByDays   ShiftMethod = "shift_by_days"
	ShiftByHours  ShiftMethod = "shift_by_hours"
	RandomDays    ShiftMethod = "random_days"
	RandomHours   ShiftMethod = "random_hours"
)

// ShiftSpec configures how a new shift offset is generated the first
// time an entity is seen. Every method — shift_by_* as well as
// random_* — draws its offset uniformly from [MinRange, MaxRange] once
// per entity and reuses it for every row belonging to that entity, so
// the round-trip invariant holds regardless of method: one leaked
// timestamp never reveals another entity's offset.
type ShiftSpec struct {
	Method             ShiftMethod
	MinRange, MaxRange float64
}

// AppendOrLookupShift returns the per-entity shift offset for uid,
// sampling and persisting one on first sight (the offset's unit
// follows spec.Method).
func (s *Store) AppendOrLookupShift(ctx context.Context, uid, value string, spec ShiftSpec) (float64, error) {
	lock := s.lockFor(uid)
	lock.Lock()
	defer lock.Unlock()

	if err := s.loadLocked(ctx, uid); err != nil {
		return 0, err
	}

	s.mu.Lock()
	frame := s.shift[uid]
	s.mu.Unlock()

	if row, ok := frame.Lookup(value); ok {
		return row.Shift, nil
	}

	offset := sampleShift(spec)
	frame.Append(identifier.Row{Value: value, Shift: offset})

	s.mu.Lock()
	s.dirty[uid+"_shift"] = true
	s.mu.Unlock()
	return offset, nil
}

// sampleShift draws the one-time-per-entity offset uniformly from
// [spec.MinRange, spec.MaxRange], the same mechanism for every shift
// method; only ApplyCalendarShift's interpretation of the resulting
// number (years, days, hours, ...) differs by method.
func sampleShift(spec ShiftSpec) float64 {
	if spec.MaxRange <= spec.MinRange {
		return spec.MinRange
	}
	return spec.MinRange + rand.Float64()*(spec.MaxRange-spec.MinRange)
}

// ApplyCalendarShift applies a years/months shift calendar-aware, or an
// exact-duration shift for weeks/days/hours.
func ApplyCalendarShift(t time.Time, method ShiftMethod, amount float64) time.Time {
	switch method {
	case ShiftByYears:
		return t.AddDate(int(amount), 0, 0)
	case ShiftByMonths:
		return t.AddDate(0, int(amount), 0)
	case ShiftByWeeks:
		return t.Add(time.Duration(amount*7*24) * time.Hour)
	case ShiftByDays, RandomDays:
		return t.Add(time.Duration(amount*24) * time.Hour)
	case ShiftByHours, RandomHours:
		return t.Add(time.Duration(amount) * time.Hour)
	default:
		return t
	}
}

// Save flushes every touched uid's frames back to the backend. Only
// uids with pending appends are written, so a read-only run leaves the
// backend untouched.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	dirty := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		dirty = append(dirty, k)
	}
	s.mu.Unlock()

	for _, key := range dirty {
		uid, kind := key, ioadapter.FrameKindID
		if trimmed, ok := trimShiftSuffix(key); ok {
			uid, kind = trimmed, ioadapter.FrameKindShift
		}

		lock := s.lockFor(uid)
		lock.Lock()
		s.mu.Lock()
		var frame *identifier.Frame
		if kind == ioadapter.FrameKindShift {
			frame = s.shift[uid]
		} else {
			frame = s.id[uid]
		}
		s.mu.Unlock()

		err := s.backend.WriteFrame(ctx, uid, kind, frame)
		lock.Unlock()
		if err != nil {
			return fmt.Errorf("save reference frame %q/%s: %w", uid, kind, err)
		}
	}
	return nil
}

func trimShiftSuffix(key string) (string, bool) {
	const suffix = "_shift"
	if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
		return key[:len(key)-len(suffix)], true
	}
	return "", false
}
