// Package scheduler runs periodic background jobs: knowledge directory
// rescans and knowledge-to-memory imports.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/streamforge/streambot/internal/knowledge"
	"github.com/streamforge/streambot/internal/memory"
)

const (
	importChunkSize    = 500
	importChunkOverlap = 50
	jobTimeout         = 5 * time.Minute
)

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron    *cron.Cron
	library *knowledge.Library
	store   *memory.Store
	log     zerolog.Logger
}

// New builds a scheduler. schedule is a cron spec or "@every" duration for
// the knowledge rescan job.
func New(lib *knowledge.Library, store *memory.Store, schedule string, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		library: lib,
		store:   store,
		log:     log,
	}
	if _, err := s.cron.AddFunc(schedule, s.rescanJob); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// rescanJob re-reads the knowledge directory and imports any file content
// into the vector store. Already-imported chunks dedup away inside the
// store, so repeat runs only add new material.
func (s *Scheduler) rescanJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	names := s.library.Rescan()
	s.log.Debug().Int("files", len(names)).Msg("knowledge rescan complete")

	if !s.store.Enabled() {
		return
	}
	for _, name := range s.library.List() {
		content, err := s.library.Load(name)
		if err != nil {
			s.log.Warn().Err(err).Str("knowledge", name).Msg("skip unreadable knowledge file")
			continue
		}
		stored, total := s.store.ImportText(ctx, content, name, "knowledge", importChunkSize, importChunkOverlap)
		if stored > 0 {
			s.log.Info().Str("knowledge", name).Int("stored", stored).Int("chunks", total).Msg("knowledge imported to memory")
		}
	}
}
