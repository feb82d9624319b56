package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Dispatch kinds.
const (
	KindBroadcast = "broadcast"
	KindReply     = "reply"
)

// DispatchRecord is one fan-out or reply attempt. Keep it schema-stable.
type DispatchRecord struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Total  int       `json:"total"`
	Failed int       `json:"failed"`
	Error  string    `json:"err,omitempty"`
	TookMS int64     `json:"took_ms"`
}
