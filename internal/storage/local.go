package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements Storage using the local filesystem. Metadata sits
// next to the content in a .meta sidecar file.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Put stores content at the given key with optional metadata
func (s *LocalStorage) Put(ctx context.Context, key string, content []byte, metadata *Metadata) error {
	fullPath := s.keyToPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", fullPath, err)
	}

	if metadata != nil {
		metaBytes, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := os.WriteFile(fullPath+".meta", metaBytes, 0644); err != nil {
			return fmt.Errorf("failed to write metadata for %s: %w", key, err)
		}
	}
	return nil
}

// Get retrieves content from the given key
func (s *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(s.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return content, nil
}

// GetInfo retrieves file information without content
func (s *LocalStorage) GetInfo(ctx context.Context, key string) (*FileInfo, error) {
	fullPath := s.keyToPath(key)

	stat, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", key)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	info := &FileInfo{
		Key:        key,
		Size:       stat.Size(),
		Checksum:   ComputeChecksum(content),
		ModifiedAt: stat.ModTime(),
	}

	if metaBytes, err := os.ReadFile(fullPath + ".meta"); err == nil {
		var metadata Metadata
		if err := json.Unmarshal(metaBytes, &metadata); err == nil {
			info.Metadata = &metadata
		}
	}
	return info, nil
}

// Exists checks if a file exists at the given key
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a file and its metadata sidecar
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	fullPath := s.keyToPath(key)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	os.Remove(fullPath + ".meta")
	return nil
}

// List returns all keys matching the given prefix
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".meta") {
			return nil
		}
		key := s.pathToKey(path)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return keys, nil
}

// keyToPath converts a storage key to a filesystem path.
// Keys are cleaned so they can never escape the base path.
func (s *LocalStorage) keyToPath(key string) string {
	cleanKey := filepath.Clean(key)
	cleanKey = strings.TrimPrefix(cleanKey, "/")
	cleanKey = strings.TrimPrefix(cleanKey, "\\")
	return filepath.Join(s.basePath, cleanKey)
}

func (s *LocalStorage) pathToKey(path string) string {
	relPath, err := filepath.Rel(s.basePath, path)
	if err != nil {
		return path
	}
	return strings.ReplaceAll(relPath, "\\", "/")
}

// ComputeChecksum computes the SHA256 checksum for content
func ComputeChecksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
