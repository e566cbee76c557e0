package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scatterview/server/internal/bundle"
	"github.com/scatterview/server/internal/ingeststore"
	"github.com/scatterview/server/internal/scatter"
	"github.com/scatterview/server/internal/settings"
)

// IngestManagerConfig contains configuration for the ingest manager.
type IngestManagerConfig struct {
	MaxConcurrent int    // Max concurrent ingest jobs (default 1)
	SQLitePath    string // Path to SQLite database
	Retention     time.Duration
	CleanupPeriod time.Duration
}

// IngestManager runs bundle uploads as background jobs with SQLite
// persistence. A finished job's product is a live engine in the registry.
type IngestManager struct {
	cfg        IngestManagerConfig
	store      *ingeststore.Store
	registry   *DatasetRegistry
	engineOpts scatter.Options
	queue      chan string // job IDs
	running    map[string]context.CancelFunc
	mu         sync.Mutex
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// NewIngestManager creates a new ingest manager with SQLite persistence.
// New engines built for uploaded datasets inherit engineOpts.
func NewIngestManager(cfg IngestManagerConfig, registry *DatasetRegistry, engineOpts scatter.Options) (*IngestManager, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 1 * time.Hour
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 1 * time.Hour
	}

	store, err := ingeststore.NewStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	im := &IngestManager{
		cfg:        cfg,
		store:      store,
		registry:   registry,
		engineOpts: engineOpts,
		queue:      make(chan string, 100),
		running:    make(map[string]context.CancelFunc),
		stopCh:     make(chan struct{}),
	}
	return im, nil
}

// Store returns the underlying store for direct access.
func (im *IngestManager) Store() *ingeststore.Store {
	return im.store
}

// Start starts the worker goroutines and cleanup ticker.
// Also recovers from previous shutdown.
func (im *IngestManager) Start() {
	// Mark any running jobs as failed (server restart)
	if err := im.store.MarkRunningAsFailed("server restarted"); err != nil {
		log.Printf("[IngestManager] failed to mark running jobs as failed: %v", err)
	}

	// Re-queue any queued jobs whose spooled payload survived the restart
	queued, err := im.store.ListQueuedJobs()
	if err != nil {
		log.Printf("[IngestManager] failed to list queued jobs: %v", err)
	} else {
		for _, job := range queued {
			if _, err := os.Stat(job.PayloadPath); err != nil {
				im.store.UpdateJobStatus(job.ID, ingeststore.JobStatusFailed, "upload payload lost on restart")
				continue
			}
			select {
			case im.queue <- job.ID:
				log.Printf("[IngestManager] re-queued job %s", job.ID)
			default:
				log.Printf("[IngestManager] queue full, cannot re-queue job %s", job.ID)
			}
		}
	}

	// Start workers
	for i := 0; i < im.cfg.MaxConcurrent; i++ {
		im.wg.Add(1)
		go im.worker()
	}

	// Start cleanup ticker
	go im.cleaner()
}

// Stop stops all workers gracefully.
func (im *IngestManager) Stop() {
	im.stopOnce.Do(func() {
		close(im.stopCh)
		close(im.queue)
		im.wg.Wait()
		im.store.Close()
	})
}

func (im *IngestManager) worker() {
	defer im.wg.Done()
	for jobID := range im.queue {
		im.runJob(jobID)
	}
}

func (im *IngestManager) runJob(jobID string) {
	job, err := im.store.GetJob(jobID)
	if err != nil || job == nil {
		log.Printf("[IngestManager] job %s not found: %v", jobID, err)
		return
	}
	// Cancelled while waiting in the queue
	if job.Status != ingeststore.JobStatusQueued {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	im.mu.Lock()
	im.running[jobID] = cancel
	im.mu.Unlock()

	defer func() {
		cancel()
		im.mu.Lock()
		delete(im.running, jobID)
		im.mu.Unlock()
		if job.PayloadPath != "" {
			os.Remove(job.PayloadPath)
		}
	}()

	// Mark as running
	if err := im.store.UpdateJobStarted(jobID); err != nil {
		log.Printf("[IngestManager] failed to update job %s as started: %v", jobID, err)
		return
	}

	execErr := im.ingest(ctx, job)

	// Update final status
	if ctx.Err() == context.Canceled {
		im.store.UpdateJobStatus(jobID, ingeststore.JobStatusCancelled, "cancelled by user")
	} else if execErr != nil {
		im.store.UpdateJobStatus(jobID, ingeststore.JobStatusFailed, execErr.Error())
	} else {
		im.store.UpdateJobStatus(jobID, ingeststore.JobStatusCompleted, "")
	}
}

// ingest turns a spooled upload into a live dataset: parse and validate the
// bundle, build derived structures, then swap the result into the registry.
func (im *IngestManager) ingest(ctx context.Context, job *ingeststore.IngestJob) error {
	im.store.UpdateJobProgress(job.ID, "parse", 0, 3)
	raw, err := os.ReadFile(job.PayloadPath)
	if err != nil {
		return fmt.Errorf("failed to read upload payload: %w", err)
	}
	ds, st, err := bundle.Parse(raw)
	if err != nil {
		return err
	}
	ds.Name = job.DatasetID

	im.store.UpdateJobProgress(job.ID, "build", 1, 3)
	if err := ds.Build(ctx, 0); err != nil {
		return err
	}

	im.store.UpdateJobProgress(job.ID, "register", 2, 3)
	// Settings shipped in the bundle must land in the store before the swap
	// so the engine's next category selection picks them up.
	im.persistBundledSettings(job.DatasetID, st)
	if eng := im.registry.Get(job.DatasetID); eng != nil {
		eng.ReplaceData(ds)
	} else {
		im.registry.Register(job.DatasetID, scatter.New(job.DatasetID, ds, im.engineOpts))
	}

	im.store.UpdateJobPoints(job.ID, ds.NumPoints())
	im.store.UpdateJobProgress(job.ID, "done", 3, 3)
	return nil
}

func (im *IngestManager) persistBundledSettings(datasetID string, st *settings.Settings) {
	if st.IsEmpty() || im.engineOpts.Store == nil {
		return
	}
	for name, c := range st.Categories {
		if err := im.engineOpts.Store.SaveCategory(datasetID, name, c); err != nil {
			log.Printf("[IngestManager] failed to save bundled settings for %s/%s: %v", datasetID, name, err)
		}
	}
}

func (im *IngestManager) cleaner() {
	ticker := time.NewTicker(im.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-im.stopCh:
			return
		case <-ticker.C:
			im.cleanup()
		}
	}
}

func (im *IngestManager) cleanup() {
	deleted, err := im.store.DeleteExpiredJobs(im.cfg.Retention)
	if err != nil {
		log.Printf("[IngestManager] cleanup error: %v", err)
	} else if deleted > 0 {
		log.Printf("[IngestManager] cleaned up %d expired jobs", deleted)
	}
}

// Submit spools the upload to disk, creates a job record, and enqueues it.
func (im *IngestManager) Submit(datasetID, filename string, payload io.Reader) (*ingeststore.IngestJob, error) {
	tmp, err := os.CreateTemp("", "scatterview-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	size, err := io.Copy(tmp, payload)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}

	job := &ingeststore.IngestJob{
		ID:          uuid.NewString(),
		DatasetID:   datasetID,
		Status:      ingeststore.JobStatusQueued,
		Filename:    filename,
		SizeBytes:   size,
		PayloadPath: tmp.Name(),
		CreatedAt:   time.Now(),
	}
	if err := im.store.CreateJob(job); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	select {
	case im.queue <- job.ID:
	default:
		// Queue full; mark as failed immediately
		im.store.UpdateJobStatus(job.ID, ingeststore.JobStatusFailed, "job queue is full; try again later")
		os.Remove(tmp.Name())
	}

	return job, nil
}

// Get returns a job by ID.
func (im *IngestManager) Get(id string) *ingeststore.IngestJob {
	job, err := im.store.GetJob(id)
	if err != nil {
		log.Printf("[IngestManager] error getting job %s: %v", id, err)
		return nil
	}
	return job
}

// Jobs returns all jobs for a dataset, newest first.
func (im *IngestManager) Jobs(datasetID string) []*ingeststore.IngestJob {
	jobs, err := im.store.ListJobsByDataset(datasetID)
	if err != nil {
		log.Printf("[IngestManager] error listing jobs for %s: %v", datasetID, err)
		return nil
	}
	return jobs
}

// Cancel attempts to cancel a running or queued job.
func (im *IngestManager) Cancel(id string) bool {
	im.mu.Lock()
	cancel, ok := im.running[id]
	im.mu.Unlock()

	if ok && cancel != nil {
		cancel()
		return true
	}

	// If not running, try to mark as cancelled in DB
	job, err := im.store.GetJob(id)
	if err != nil || job == nil {
		return false
	}
	if job.Status == ingeststore.JobStatusQueued {
		im.store.UpdateJobStatus(id, ingeststore.JobStatusCancelled, "cancelled before start")
		return true
	}
	return false
}

// Delete removes a finished job record and its spooled payload.
func (im *IngestManager) Delete(id string) error {
	job, err := im.store.GetJob(id)
	if err != nil {
		return err
	}
	if job != nil && job.PayloadPath != "" {
		os.Remove(job.PayloadPath)
	}
	return im.store.DeleteJob(id)
}
