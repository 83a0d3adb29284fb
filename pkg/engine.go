package pkg

import (
	"context"
	"sync"
)

// LockedEngine serializes every call into a shared audio engine handle. The
// underlying engine is not safely reentrant across threads, so the decode
// bridge, the modern locator, and any caller-driven playback must all go
// through the same lock. Streams opened through a LockedEngine take the
// lock for each read as well.
type LockedEngine struct {
	mu     sync.Mutex
	engine AudioEngine
}

// NewLockedEngine wraps engine behind one mutual-exclusion lock.
func NewLockedEngine(engine AudioEngine) *LockedEngine {
	return &LockedEngine{engine: engine}
}

func (l *LockedEngine) Enumerate(ctx context.Context, rng Range) ([]StreamInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.Enumerate(ctx, rng)
}

func (l *LockedEngine) OpenStream(ctx context.Context, rng Range, index int) (StreamReader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inner, err := l.engine.OpenStream(ctx, rng, index)
	if err != nil {
		return nil, err
	}
	return &lockedStream{mu: &l.mu, inner: inner}, nil
}

func (l *LockedEngine) DecodeAll(ctx context.Context, rng Range, index int) ([]byte, PCMInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine.DecodeAll(ctx, rng, index)
}

// lockedStream holds the engine lock for the duration of each read so
// concurrent callers never interleave inside the engine.
type lockedStream struct {
	mu    *sync.Mutex
	inner StreamReader
}

func (s *lockedStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Read(p)
}

func (s *lockedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}

func (s *lockedStream) Info() PCMInfo {
	return s.inner.Info()
}
