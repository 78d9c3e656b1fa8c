// Package storage archives raw report payloads so a batch's external input
// can be inspected long after the channel has expired the report.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Metadata describes an archived payload
type Metadata struct {
	ContentType  string            `json:"contentType,omitempty"`
	Channel      string            `json:"channel,omitempty"`
	BatchID      string            `json:"batchId,omitempty"`
	ReportHandle string            `json:"reportHandle,omitempty"`
	FetchedAt    time.Time         `json:"fetchedAt,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// FileInfo contains information about a stored payload
type FileInfo struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// Storage defines the interface for payload archive backends.
// Implementations can be local filesystem, S3, GCS, etc.
type Storage interface {
	// Put stores content at the given key with optional metadata
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get retrieves content from the given key
	Get(ctx context.Context, key string) ([]byte, error)

	// GetInfo retrieves file information without content
	GetInfo(ctx context.Context, key string) (*FileInfo, error)

	// Exists checks if a file exists at the given key
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes a file at the given key
	Delete(ctx context.Context, key string) error

	// List returns all keys matching the given prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

// BuildPayloadKey builds the archive key for one batch's raw report payload
func BuildPayloadKey(channel string, fetchedAt time.Time, batchID string) string {
	return fmt.Sprintf("payloads/%s/%s/%s.json", channel, fetchedAt.Format("2006-01-02"), batchID)
}
