package core

import "time"

const (
	// HeartbeatInterval sets how often workers report their status.
	HeartbeatInterval = 30 * time.Second

	// StatusTTL sets how long a reported status survives without a new
	// heartbeat. A crashed worker's entry expires on its own.
	StatusTTL = 90 * time.Second
)
