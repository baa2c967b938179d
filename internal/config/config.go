// Package config implements the node's process configuration (spec §6
// "Configuration"): where keyshares live, how to reach the message bus,
// and (for the mobile deployment profile) a small on-disk override for
// the bus address that survives process restarts without an environment
// variable.
//
// Grounded on luxfi/threshold/protocols/lss/config's Config/marshal.go
// split (a plain struct plus a dedicated file for its wire encoding) and
// original_source/backend/node/src/config/mobile.rs's ConfigMobile (a
// storage-rooted nats_address override file, read with a hardcoded
// fallback address when absent).
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultNATSAddress is used when neither NATS_ADDRESS nor a persisted
// mobile profile address is set (mobile.rs's fallback literal).
const DefaultNATSAddress = "nats://app.gridlock.network:4222"

// Config is the single process configuration, constructed once at
// startup and threaded explicitly into the dispatcher and command layer
// (spec §5/§9: no package-level mutable config global).
type Config struct {
	// StorageDir roots the keystore and node identity file (STORAGE_DIR).
	StorageDir string
	// NodeID seeds a freshly created node identity (NODE_ID). Once
	// node.json exists its stored node id is authoritative; NodeID is
	// only consulted the first time a node boots.
	NodeID string
	// NATSAddress is the bus URL (NATS_ADDRESS, or the mobile profile
	// file, or DefaultNATSAddress).
	NATSAddress string
	// NATSUser/NATSPassword authenticate the bus connection
	// (NATS_USER/NATS_PASSWORD).
	NATSUser     string
	NATSPassword string
}

// FromEnv builds a Config from the process environment, falling back to
// the mobile profile file and then DefaultNATSAddress for the bus
// address (spec §6's configuration table).
func FromEnv() (Config, error) {
	storageDir := os.Getenv("STORAGE_DIR")
	if storageDir == "" {
		return Config{}, fmt.Errorf("config: STORAGE_DIR is not set")
	}
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return Config{}, fmt.Errorf("config: create storage dir %s: %w", storageDir, err)
	}

	address := os.Getenv("NATS_ADDRESS")
	if address == "" {
		address = readMobileProfileAddress(storageDir)
	}
	if address == "" {
		address = DefaultNATSAddress
	}

	return Config{
		StorageDir:   storageDir,
		NodeID:       os.Getenv("NODE_ID"),
		NATSAddress:  address,
		NATSUser:     os.Getenv("NATS_USER"),
		NATSPassword: os.Getenv("NATS_PASSWORD"),
	}, nil
}

// mobileProfilePath is <root>/nats_address (mobile.rs's set_nats_address
// target), the file a mobile client writes to override the bus address
// without restarting with a new environment.
func mobileProfilePath(storageDir string) string {
	return filepath.Join(storageDir, "nats_address")
}

func readMobileProfileAddress(storageDir string) string {
	data, err := os.ReadFile(mobileProfilePath(storageDir))
	if err != nil {
		return ""
	}
	return string(data)
}

// SetMobileProfileAddress persists address as the mobile profile's bus
// override, or removes the override file when address is empty
// (mobile.rs's set_nats_address: write if non-empty, else delete).
func SetMobileProfileAddress(storageDir, address string) error {
	path := mobileProfilePath(storageDir)
	if address == "" {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(path, []byte(address), 0o600)
}
