package ir

// Version constants for the snapshot format and engine.
const (
	// SnapshotVersion is written into every serialized transaction.
	SnapshotVersion = "1"

	// EngineVersion is the stead engine version.
	EngineVersion = "0.1.0"
)
