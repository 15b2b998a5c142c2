package segment

import (
	"encoding/binary"
	"math"

	"github.com/outpostdb/mergestore/core/meta"
)

// cellBytes renders one cell value as canonical bytes: fixed-width
// little-endian for numerics, raw bytes for string/binary, one byte for
// bool. Used both as the bloom-filter key and as the dictionary key, so
// writer and reader must agree on it exactly.
func cellBytes(t meta.ColumnType, v any) []byte {
	switch t {
	case meta.ColInt8:
		return []byte{byte(v.(int8))}
	case meta.ColUint8:
		return []byte{v.(uint8)}
	case meta.ColBool:
		if v.(bool) {
			return []byte{1}
		}
		return []byte{0}
	case meta.ColInt16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v.(int16)))
		return b[:]
	case meta.ColUint16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v.(uint16))
		return b[:]
	case meta.ColInt32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v.(int32)))
		return b[:]
	case meta.ColUint32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v.(uint32))
		return b[:]
	case meta.ColFloat32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v.(float32)))
		return b[:]
	case meta.ColInt64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.(int64)))
		return b[:]
	case meta.ColUint64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v.(uint64))
		return b[:]
	case meta.ColFloat64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.(float64)))
		return b[:]
	case meta.ColString:
		return []byte(v.(string))
	case meta.ColBinary:
		return v.([]byte)
	}
	return nil
}

// cellFromBytes is the inverse of cellBytes: fixed-width types are decoded
// little-endian, strings are converted to string, and binary values are
// returned as a copy of b.
func cellFromBytes(t meta.ColumnType, b []byte) any {
	switch t {
	case meta.ColInt8:
		return int8(b[0])
	case meta.ColUint8:
		return b[0]
	case meta.ColBool:
		return b[0] != 0
	case meta.ColInt16:
		return int16(binary.LittleEndian.Uint16(b))
	case meta.ColUint16:
		return binary.LittleEndian.Uint16(b)
	case meta.ColInt32:
		return int32(binary.LittleEndian.Uint32(b))
	case meta.ColUint32:
		return binary.LittleEndian.Uint32(b)
	case meta.ColFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case meta.ColInt64:
		return int64(binary.LittleEndian.Uint64(b))
	case meta.ColUint64:
		return binary.LittleEndian.Uint64(b)
	case meta.ColFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case meta.ColString:
		return string(b)
	case meta.ColBinary:
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return nil
}

// fixedWidth returns the on-disk width of a fixed-width type, 0 for
// variable-length types.
func fixedWidth(t meta.ColumnType) int {
	switch t {
	case meta.ColInt8, meta.ColUint8, meta.ColBool:
		return 1
	case meta.ColInt16, meta.ColUint16:
		return 2
	case meta.ColInt32, meta.ColUint32, meta.ColFloat32:
		return 4
	case meta.ColInt64, meta.ColUint64, meta.ColFloat64:
		return 8
	}
	return 0
}

// zeroValue is the placeholder written for null cells of fixed-width
// columns so every row occupies a slot.
func zeroValue(t meta.ColumnType) any {
	switch t {
	case meta.ColInt8:
		return int8(0)
	case meta.ColUint8:
		return uint8(0)
	case meta.ColBool:
		return false
	case meta.ColInt16:
		return int16(0)
	case meta.ColUint16:
		return uint16(0)
	case meta.ColInt32:
		return int32(0)
	case meta.ColUint32:
		return uint32(0)
	case meta.ColFloat32:
		return float32(0)
	case meta.ColInt64:
		return int64(0)
	case meta.ColUint64:
		return uint64(0)
	case meta.ColFloat64:
		return float64(0)
	case meta.ColString:
		return ""
	case meta.ColBinary:
		return []byte(nil)
	}
	return nil
}
