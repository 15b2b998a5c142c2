// Package cos provides low-level checksum and identifier helpers shared by
// the engine and objstore packages.
package cos

import (
	"strconv"
	"unsafe"

	"github.com/OneOfOne/xxhash"
)

// MLCG32 seeds the xxhash digest so content and placement hashes stay
// stable across releases.
const MLCG32 = 1103515245

// Checksum64 returns the 64-bit xxhash digest of b.
func Checksum64(b []byte) uint64 {
	return xxhash.Checksum64S(b, MLCG32)
}

// ChecksumHex is Checksum64 formatted as base-16, used for FileMeta content
// checksums recorded in the manifest.
func ChecksumHex(b []byte) string {
	return strconv.FormatUint(Checksum64(b), 16)
}

// UnsafeB reinterprets s as a byte slice without copying, for hot-path
// digest computation.
func UnsafeB(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
