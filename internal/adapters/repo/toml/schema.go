package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version   int              `toml:"version"`
	Transfers []transferSchema `toml:"transfers"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported history schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type transferSchema struct {
	ID       string `toml:"id"`
	ItemID   string `toml:"item_id"`
	ItemName string `toml:"item_name,omitempty"`
	PeerID   string `toml:"peer_id"`
	PeerName string `toml:"peer_name,omitempty"`
	SentAt   string `toml:"sent_at"`
}
