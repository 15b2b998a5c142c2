// Package fname contains the object-store layout constants shared by the
// engine, manifest, and dev tooling.
package fname

const (
	// per-engine object-store layout, relative to the engine root
	DataDir     = "data"
	ManifestDir = "manifest"

	// manifest objects
	ManifestSnapshot = "snapshot"
	ManifestDeltaExt = ".delta"

	// devstore server config
	DevstoreConfig = "devstore.json"
)
