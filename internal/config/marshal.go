package config

import "encoding/json"

// configJSON is the wire shape for Config, keeping NATSPassword out of
// any JSON encoding of a Config.
type configJSON struct {
	StorageDir  string `json:"storage_dir"`
	NATSAddress string `json:"nats_address"`
	NATSUser    string `json:"nats_user"`
}

// MarshalJSON renders a Config without its password, for diagnostic
// display.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		StorageDir:  c.StorageDir,
		NATSAddress: c.NATSAddress,
		NATSUser:    c.NATSUser,
	})
}
