package bunquery

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kartikbazzad/bunbase/bunquery/internal/index"
)

// SystemCatalog holds the persistent index definitions of the database
type SystemCatalog struct {
	Indexes map[string]index.Definition `json:"indexes"`
}

// catalogManager handles the persistence of index definitions.
//
// Indexes themselves live in memory and are rebuilt from the documents on
// open; only their definitions are stored, in a JSON file beside the
// write-ahead log. An empty path keeps the catalog in memory.
type catalogManager struct {
	path    string
	catalog SystemCatalog
	mu      sync.RWMutex
}

func newCatalogManager(path string) (*catalogManager, error) {
	cm := &catalogManager{
		path:    path,
		catalog: SystemCatalog{Indexes: make(map[string]index.Definition)},
	}
	if path == "" {
		return cm, nil
	}
	if err := cm.load(); err != nil {
		if os.IsNotExist(err) {
			// Initialize empty
			return cm, nil
		}
		return nil, err
	}
	if cm.catalog.Indexes == nil {
		cm.catalog.Indexes = make(map[string]index.Definition)
	}
	return cm, nil
}

// load reads the catalog from disk
func (cm *catalogManager) load() error {
	data, err := os.ReadFile(cm.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &cm.catalog)
}

// saveLocked writes the catalog through a temporary file so a crash never
// leaves a truncated catalog behind.
func (cm *catalogManager) saveLocked() error {
	if cm.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(cm.catalog, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cm.path), 0755); err != nil {
		return err
	}
	tmp := cm.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, cm.path)
}

// PutIndex stores or replaces an index definition
func (cm *catalogManager) PutIndex(def index.Definition) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.catalog.Indexes[def.Name] = def
	return cm.saveLocked()
}

// DeleteIndex removes an index definition
func (cm *catalogManager) DeleteIndex(name string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.catalog.Indexes[name]; !ok {
		return nil
	}
	delete(cm.catalog.Indexes, name)
	return cm.saveLocked()
}

// ListIndexes returns all definitions, sorted by name
func (cm *catalogManager) ListIndexes() []index.Definition {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	defs := make([]index.Definition, 0, len(cm.catalog.Indexes))
	for _, def := range cm.catalog.Indexes {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
