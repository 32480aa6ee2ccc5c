package scene

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rahulsinghu/AstralCleanser/internal/metrics"
)

// ErrRefreshInProgress is returned by Refresh while another refresh runs.
var ErrRefreshInProgress = errors.New("scene refresh already in progress")

// ComputeFunc builds a new scene, typically by reloading the catalog and
// calling Compute.
type ComputeFunc func(ctx context.Context) (*Scene, error)

// Store holds the current Scene for concurrent readers. Writers replace it
// whole; readers never see a partially built scene.
type Store struct {
	current atomic.Pointer[Scene]
	mu      sync.Mutex // serializes recomputation
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current scene, or nil before the first Set.
func (s *Store) Get() *Scene {
	return s.current.Load()
}

// Set atomically replaces the current scene.
func (s *Store) Set(sc *Scene) {
	s.current.Store(sc)
}

// Ready reports whether a scene has been stored.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// AgeSeconds returns how long ago the current scene was computed, or -1
// when there is none.
func (s *Store) AgeSeconds(now time.Time) float64 {
	sc := s.current.Load()
	if sc == nil {
		return -1
	}
	return now.Sub(sc.ComputedAt).Seconds()
}

// Refresh runs compute and stores its result. Concurrent calls do not
// queue: all but the first fail with ErrRefreshInProgress. On error the
// current scene is kept.
func (s *Store) Refresh(ctx context.Context, compute ComputeFunc) (*Scene, error) {
	if !s.mu.TryLock() {
		metrics.IncSceneRefresh("busy")
		return nil, ErrRefreshInProgress
	}
	defer s.mu.Unlock()

	sc, err := compute(ctx)
	if err != nil {
		metrics.IncSceneRefresh("error")
		return nil, err
	}
	s.Set(sc)
	metrics.IncSceneRefresh("ok")
	metrics.SetSceneAge(0)
	return sc, nil
}
