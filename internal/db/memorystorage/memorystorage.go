// Package memorystorage provides the process-local backend selected by
// DB_TYPE=memory. Data lives as long as the process unless a snapshot file
// is configured.
package memorystorage

import (
	"github.com/patric-chuzhbe/userapi/internal/db/jsondb"
)

// MemoryStorage is a storage.Backend kept in process memory.
type MemoryStorage struct {
	*jsondb.JSONDB
}

// New returns an empty store. A non-empty snapshotFile is loaded on start and
// rewritten on Close.
func New(snapshotFile string) (*MemoryStorage, error) {
	if snapshotFile == "" {
		return &MemoryStorage{JSONDB: jsondb.NewInMemory()}, nil
	}

	db, err := jsondb.New(snapshotFile)
	if err != nil {
		return nil, err
	}

	return &MemoryStorage{JSONDB: db}, nil
}
