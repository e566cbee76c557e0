package api

import (
	"sync"

	"github.com/scatterview/server/internal/scatter"
)

// DatasetInfo contains information about a dataset for the API response.
type DatasetInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// DatasetRegistry holds scatter engines for all served datasets. Uploads
// register new engines at runtime, so access is guarded by a lock.
type DatasetRegistry struct {
	mu             sync.RWMutex
	engines        map[string]*scatter.Engine
	defaultDataset string
	datasetOrder   []string
	title          string
}

// NewDatasetRegistry creates a new dataset registry.
func NewDatasetRegistry(defaultDataset string, title string) *DatasetRegistry {
	return &DatasetRegistry{
		engines:        make(map[string]*scatter.Engine),
		defaultDataset: defaultDataset,
		title:          title,
	}
}

// Register adds an engine for a dataset. Re-registering an existing dataset
// replaces its engine and keeps its position in the listing. The first
// dataset ever registered becomes the default when none was configured.
func (r *DatasetRegistry) Register(datasetID string, eng *scatter.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.engines[datasetID]; !ok {
		r.datasetOrder = append(r.datasetOrder, datasetID)
	}
	r.engines[datasetID] = eng
	if r.defaultDataset == "" {
		r.defaultDataset = datasetID
	}
}

// Get returns the engine for a dataset, or nil if not found.
func (r *DatasetRegistry) Get(datasetID string) *scatter.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[datasetID]
}

// Default returns the default dataset's engine.
func (r *DatasetRegistry) Default() *scatter.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[r.defaultDataset]
}

// DefaultDatasetID returns the default dataset ID.
func (r *DatasetRegistry) DefaultDatasetID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultDataset
}

// DatasetIDs returns all dataset IDs in registration order.
func (r *DatasetRegistry) DatasetIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.datasetOrder...)
}

// Title returns the configured site title.
func (r *DatasetRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "ScatterView"
}

// Datasets returns dataset info for all registered datasets.
func (r *DatasetRegistry) Datasets() []DatasetInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]DatasetInfo, 0, len(r.datasetOrder))
	for _, id := range r.datasetOrder {
		info := DatasetInfo{ID: id, Name: id}
		if eng := r.engines[id]; eng != nil {
			info.Points = eng.TotalPoints()
		}
		infos = append(infos, info)
	}
	return infos
}
