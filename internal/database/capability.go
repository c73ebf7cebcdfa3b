package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCapabilityProbeFailed marks a failed pgvector probe. It is never fatal;
// the process runs on the array fallback instead.
var ErrCapabilityProbeFailed = errors.New("vector capability probe failed")

const (
	capabilityUnknown int32 = iota
	capabilityNative
	capabilityFallback
)

// ProbeFunc checks whether the backend supports the native vector type.
type ProbeFunc func(ctx context.Context) error

// CapabilityDetector records, once per process, whether the database offers
// pgvector. The first Detect runs the probe; every later call reads the cached
// result. Concurrent first callers may probe more than once, the probe is
// idempotent and the first stored result wins.
type CapabilityDetector struct {
	probe   ProbeFunc
	timeout time.Duration
	state   atomic.Int32
}

// NewCapabilityDetector probes pool for pgvector.
func NewCapabilityDetector(pool *pgxpool.Pool, timeout time.Duration) *CapabilityDetector {
	return NewCapabilityDetectorWithProbe(PgvectorProbe(pool), timeout)
}

func NewCapabilityDetectorWithProbe(probe ProbeFunc, timeout time.Duration) *CapabilityDetector {
	return &CapabilityDetector{probe: probe, timeout: timeout}
}

// PgvectorProbe enables the extension if possible and checks the cosine operator works.
func PgvectorProbe(pool *pgxpool.Pool) ProbeFunc {
	return func(ctx context.Context) error {
		if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return fmt.Errorf("enabling vector extension: %w", err)
		}
		var d float64
		if err := pool.QueryRow(ctx, `SELECT '[1,0]'::vector <=> '[1,0]'::vector`).Scan(&d); err != nil {
			return fmt.Errorf("checking cosine operator: %w", err)
		}
		return nil
	}
}

// Detect reports whether native vector support is available.
func (d *CapabilityDetector) Detect(ctx context.Context) bool {
	if native, ok := d.Native(); ok {
		return native
	}

	result := capabilityNative
	if err := d.runProbe(ctx); err != nil {
		slog.Warn("pgvector not available, using array fallback",
			"error", fmt.Errorf("%w: %w", ErrCapabilityProbeFailed, err))
		result = capabilityFallback
	} else {
		slog.Info("pgvector available, using native vector backend")
	}

	d.state.CompareAndSwap(capabilityUnknown, result)
	return d.state.Load() == capabilityNative
}

// Native returns the cached result and whether a probe has completed.
func (d *CapabilityDetector) Native() (native bool, known bool) {
	switch d.state.Load() {
	case capabilityNative:
		return true, true
	case capabilityFallback:
		return false, true
	}
	return false, false
}

func (d *CapabilityDetector) runProbe(ctx context.Context) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return d.probe(ctx)
}
