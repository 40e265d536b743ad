// Package deployer ensures exactly one registry contract instance exists and
// is reused for all subsequent executions: it deploys on first use, persists
// the resulting address, and reconciles with an already deployed instance
// instead of ever deploying twice.
package deployer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mnslabs/mns-backend/interfaces"
)

// FileAddressStore persists the deployed contract address as a small JSON
// file. Save writes to a temporary file and renames it into place, so a
// crashed write never leaves a partially written address behind.
type FileAddressStore struct {
	path string
}

type addressFile struct {
	Address    string    `json:"address"`
	DeployedAt time.Time `json:"deployed_at"`
}

// NewFileAddressStore creates a store at path, creating parent directories
// as needed.
func NewFileAddressStore(path string) (*FileAddressStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating address store directory: %w", err)
	}
	return &FileAddressStore{path: path}, nil
}

// Load reads the persisted address. interfaces.ErrNoAddress when the file
// does not exist.
func (s *FileAddressStore) Load() (interfaces.ContractAddress, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return interfaces.ContractAddress{}, interfaces.ErrNoAddress
	}
	if err != nil {
		return interfaces.ContractAddress{}, fmt.Errorf("reading address store: %w", err)
	}

	var f addressFile
	if err := json.Unmarshal(data, &f); err != nil {
		return interfaces.ContractAddress{}, fmt.Errorf("parsing address store %s: %w", s.path, err)
	}
	addr, err := interfaces.NewContractAddressFromHex(f.Address)
	if err != nil {
		return interfaces.ContractAddress{}, fmt.Errorf("address store %s holds malformed address: %w", s.path, err)
	}
	return addr, nil
}

// Save atomically persists addr.
func (s *FileAddressStore) Save(addr interfaces.ContractAddress) error {
	data, err := json.MarshalIndent(addressFile{
		Address:    addr.String(),
		DeployedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding address: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing address store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing address store: %w", err)
	}
	return nil
}

var _ interfaces.AddressStore = (*FileAddressStore)(nil)
