package preview

import "sync"

// Uploads holds binaries uploaded during this process, keyed by document id.
// They are consulted before the binary cache and never persisted.
type Uploads struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewUploads returns an empty map.
func NewUploads() *Uploads {
	return &Uploads{files: make(map[string][]byte)}
}

// Put records data for id, replacing any previous binary.
func (u *Uploads) Put(id string, data []byte) {
	u.mu.Lock()
	u.files[id] = data
	u.mu.Unlock()
}

// Get returns the binary for id, or nil.
func (u *Uploads) Get(id string) []byte {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.files[id]
}

// Delete forgets id.
func (u *Uploads) Delete(id string) {
	u.mu.Lock()
	delete(u.files, id)
	u.mu.Unlock()
}

// Len returns the number of held binaries.
func (u *Uploads) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.files)
}
