package secretstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"apisession/pkg/logging"
)

// DefaultStorageDir is the default credential directory, relative to the
// user's home directory.
const DefaultStorageDir = ".config/apisession/credentials"

// FileStore persists credentials as JSON files, one per key.
//
// The directory is created with 0700 and files with 0600 so other users
// cannot read stored refresh tokens. An in-memory cache avoids re-reading
// files on every lookup; Invalidate drops a cache entry when the file is
// known to have changed externally.
type FileStore struct {
	mu    sync.RWMutex
	dir   string
	cache map[string]*Credential
}

// NewFileStore creates a file-backed store rooted at dir. An empty dir
// selects DefaultStorageDir under the user's home directory.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultStorageDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	return &FileStore{
		dir:   dir,
		cache: make(map[string]*Credential),
	}, nil
}

// Dir returns the directory the store persists into.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Get(key string) (*Credential, error) {
	s.mu.RLock()
	if cred, ok := s.cache[key]; ok {
		clone := *cred
		s.mu.RUnlock()
		return &clone, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cred, ok := s.cache[key]; ok {
		clone := *cred
		return &clone, nil
	}

	cred, err := s.readFile(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	s.cache[key] = cred
	clone := *cred
	return &clone, nil
}

func (s *FileStore) Set(key string, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := os.WriteFile(s.path(key), data, 0600); err != nil {
		logging.Error("SecretStore", err, "Failed to persist credential for authority %s", cred.Authority)
		return fmt.Errorf("failed to write credential file: %w", err)
	}

	clone := *cred
	s.cache[key] = &clone

	logging.Debug("SecretStore", "Stored credential for authority %s", cred.Authority)
	return nil
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, key)

	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) List() ([]*Credential, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credential directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var creds []*Credential
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		cred, err := s.readFile(key)
		if err != nil {
			logging.Warn("SecretStore", "Skipping unreadable credential file %s: %v", entry.Name(), err)
			continue
		}
		s.cache[key] = cred
		clone := *cred
		creds = append(creds, &clone)
	}

	sort.Slice(creds, func(i, j int) bool {
		if creds[i].Authority != creds[j].Authority {
			return creds[i].Authority < creds[j].Authority
		}
		return creds[i].ClientID < creds[j].ClientID
	})

	return creds, nil
}

// Invalidate drops the cache entry for key so the next Get re-reads the
// file. Called by the watcher when another process rewrites a credential.
func (s *FileStore) Invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// readFile reads and decodes one credential file. Callers hold s.mu.
func (s *FileStore) readFile(key string) (*Credential, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}
