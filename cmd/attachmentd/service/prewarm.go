package service

import (
	"context"
	"sync"

	"github.com/quillwiki/attachd/cmd/attachmentd/models"
	"github.com/quillwiki/attachd/common/logger"
)

// PrewarmJob asks for one derived artifact to be computed ahead of the
// first user request
type PrewarmJob struct {
	AttachmentID int64
	Kind         models.DerivedKind
}

// Prewarmer derives artifacts in the background after ingest. It is an
// optimization only: the lazy path in Deriver stays authoritative, and
// a dropped job just means the first viewer pays for the derivation.
type Prewarmer struct {
	jobs    chan PrewarmJob
	wg      sync.WaitGroup
	deriver *Deriver
	log     *logger.Logger
	once    sync.Once
}

// NewPrewarmer starts the worker pool
func NewPrewarmer(deriver *Deriver, workers, queueSize int, log *logger.Logger) *Prewarmer {
	p := &Prewarmer{
		jobs:    make(chan PrewarmJob, queueSize),
		deriver: deriver,
		log:     log,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Prewarmer) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		rc, _, err := p.deriver.GetOrCreate(context.Background(), job.AttachmentID, job.Kind)
		if err != nil {
			p.log.Warn("prewarm failed",
				"worker", id,
				"attachment_id", job.AttachmentID,
				"kind", job.Kind,
				"error", err,
			)
			continue
		}
		rc.Close()
	}
}

// Queue schedules a job, dropping it when the queue is full
func (p *Prewarmer) Queue(job PrewarmJob) {
	select {
	case p.jobs <- job:
	default:
		p.log.Warn("prewarm queue full, dropping job",
			"attachment_id", job.AttachmentID,
			"kind", job.Kind,
		)
	}
}

// Shutdown stops accepting jobs and waits for in-flight derivations
func (p *Prewarmer) Shutdown() {
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}
