package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "cibot/pkg/logx"
)

// fileRepo is the dependency-free persistence backend: one JSON snapshot
// file, replaced atomically (tmp + rename) on every save.
type fileRepo struct {
	log logx.Logger

	mu   sync.Mutex
	path string
}

func openFileRepo(cfg Config, log logx.Logger) (Repository, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileRepo{log: log, path: path}, nil
}

func (r *fileRepo) Load() ([]Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var snapshot []Subscriber
	if err := json.NewDecoder(f).Decode(&snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *fileRepo) Save(snapshot []Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tmp := r.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

func (r *fileRepo) Close() error { return nil }
