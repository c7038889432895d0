// Package ioadapter defines the storage contracts the core transforms
// against — a table store (segment-oriented tabular I/O) and a
// reference store (per-uid mapping frames) — plus two concrete
// backends: filesystem and SQL. Backends register themselves by
// io_type string through a small registry, the one open plugin point
// in this engine; transformers are a closed sum type instead (see
// internal/transform).
package ioadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/nomaai/deidgo/internal/identifier"
	"github.com/nomaai/deidgo/internal/table"
)

// FrameKind distinguishes the two reference-frame shapes a store can
// hold: an id mapping (value → surrogate) or a shift mapping (entity →
// offset).
type FrameKind string

const (
	FrameKindID    FrameKind = "id"
	FrameKindShift FrameKind = "shift"
)

// TableStore is a segment-oriented table backend: a table is either a
// single segment or a directory of named segments.
type TableStore interface {
	// ListSegments returns the segment names for table, in a stable
	// order. A single-segment table returns one synthetic name.
	ListSegments(ctx context.Context, tableName string) ([]string, error)
	ReadSegment(ctx context.Context, tableName, segment string) (*table.Frame, error)
	WriteSegment(ctx context.Context, tableName, segment string, f *table.Frame) error
}

// RefStore is the persistence backend for per-uid reference frames.
type RefStore interface {
	// ListUIDs returns every uid with a persisted ID frame; a uid that
	// has only a shift frame is not listed.
	ListUIDs(ctx context.Context) ([]string, error)
	ReadFrame(ctx context.Context, uid string, kind FrameKind) (*identifier.Frame, error)
	WriteFrame(ctx context.Context, uid string, kind FrameKind, f *identifier.Frame) error
}

// Config is the opaque per-backend configuration parsed from the
// engine config's IOConfig.Config map.
type Config map[string]any

// TableStoreFactory builds a TableStore from Config.
type TableStoreFactory func(cfg Config) (TableStore, error)

// RefStoreFactory builds a RefStore from Config.
type RefStoreFactory func(cfg Config) (RefStore, error)

var (
	registryMu   sync.RWMutex
	tableStores  = map[string]TableStoreFactory{}
	refStores    = map[string]RefStoreFactory{}
)

// RegisterTableStore registers a TableStore backend by io_type. Called
// from init() in each backend's file.
func RegisterTableStore(ioType string, f TableStoreFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	tableStores[ioType] = f
}

// RegisterRefStore registers a RefStore backend by io_type.
func RegisterRefStore(ioType string, f RefStoreFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	refStores[ioType] = f
}

// NewTableStore builds a registered TableStore backend.
func NewTableStore(ioType string, cfg Config) (TableStore, error) {
	registryMu.RLock()
	f, ok := tableStores[ioType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown table store io_type: %q", ioType)
	}
	return f(cfg)
}

// NewRefStore builds a registered RefStore backend.
func NewRefStore(ioType string, cfg Config) (RefStore, error) {
	registryMu.RLock()
	f, ok := refStores[ioType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ref store io_type: %q", ioType)
	}
	return f(cfg)
}
