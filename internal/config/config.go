// Package config holds the exchange's runtime tunables as a plain struct
// with an explicit constructor: no reflective config-loading framework,
// just defaults a caller can override.
package config

import "time"

// Config bundles every tunable the server binary wires into its
// collaborators at startup.
type Config struct {
	ListenAddress string
	ListenPort    int

	WorkerPoolSize int

	SnapshotDepth int

	SinkQueueCapacity int

	BroadcastInterval time.Duration
	BroadcastDepth    int
}

// New returns a Config populated with the defaults a development instance
// runs with.
func New() Config {
	return Config{
		ListenAddress:     "0.0.0.0",
		ListenPort:        9001,
		WorkerPoolSize:    10,
		SnapshotDepth:     10,
		SinkQueueCapacity: 1024,
		BroadcastInterval: 20 * time.Millisecond, // 50Hz
		BroadcastDepth:    10,
	}
}
