package storage

import (
	"fmt"

	"github.com/MasumNishat/signing-sub001/pkg/config"
)

// StorageFactory creates storage instances based on configuration
type StorageFactory struct {
	config *config.StorageConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(config *config.StorageConfig) *StorageFactory {
	return &StorageFactory{config: config}
}

// CreateStorage creates a storage instance based on the configured type
func (sf *StorageFactory) CreateStorage() (BlobStorage, error) {
	switch sf.config.Type {
	case "local":
		return NewLocalStorage(sf.config.LocalPath)
	case "s3", "gcs", "azure":
		return nil, fmt.Errorf("storage type %s not yet implemented", sf.config.Type)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sf.config.Type)
	}
}
