// Storage wiring shared by the tally commands.
package cli

import (
	"context"
	"fmt"

	"github.com/apex/log"

	"github.com/mesh-intelligence/tally/internal/counts"
	"github.com/mesh-intelligence/tally/internal/redismeta"
	"github.com/mesh-intelligence/tally/internal/relations"
	"github.com/mesh-intelligence/tally/internal/sqlite"
	"github.com/mesh-intelligence/tally/pkg/types"
)

// stack is the attached backend with the count cache and relationship
// service built over it.
type stack struct {
	backend   *sqlite.Backend
	redis     *redismeta.Store
	counts    *counts.Manager
	relations *relations.Service
}

// open attaches the SQLite backend and, when configured, connects the
// Redis term meta store. The caller must call close.
func (a *app) open(ctx context.Context) (*stack, error) {
	backend := sqlite.NewBackend()
	if err := backend.Attach(a.cfg); err != nil {
		return nil, fmt.Errorf("attaching backend: %w", err)
	}
	s := &stack{backend: backend}

	var meta types.TermMetaStore = backend
	if a.cfg.EffectiveMetaStore() == types.MetaStoreRedis {
		s.redis = redismeta.New(a.cfg.Redis)
		if err := s.redis.Ping(ctx); err != nil {
			s.close()
			return nil, err
		}
		meta = s.redis
	}

	s.counts = counts.NewManager(counts.Stores{
		Relationships: backend,
		Meta:          meta,
		Taxonomies:    backend,
		Terms:         backend,
	}, counts.WithTermLocking())
	s.relations = relations.NewService(backend, backend, backend, s.counts)

	log.WithFields(log.Fields{
		"data_dir":   a.cfg.DataDir,
		"meta_store": a.cfg.EffectiveMetaStore(),
	}).Debug("storage opened")
	return s, nil
}

// close detaches the backend, flushing pending JSONL writes.
func (s *stack) close() error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.WithError(err).Warn("closing redis")
		}
	}
	return s.backend.Detach()
}

// withStack opens the stack, runs fn and closes the stack, keeping the
// first error.
func (a *app) withStack(ctx context.Context, fn func(*stack) error) (err error) {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = fmt.Errorf("detaching backend: %w", cerr)
		}
	}()
	return fn(s)
}
