package segment

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/cmn/prob"
	"github.com/outpostdb/mergestore/core/meta"
)

// Reader decodes a segment file previously produced by Writer. The whole
// object is held in memory; segments are bounded by a single write's batch
// so this stays proportional to the ingest batch size.
type Reader struct {
	data   []byte
	ftr    footer
	blooms map[string]*prob.Filter
	zdec   *zstd.Decoder
}

func NewReader(data []byte) (*Reader, error) {
	tailLen := len(segMagic) + 4
	if len(data) < 2*len(segMagic)+4 {
		return nil, &cmn.ErrDecodeSegment{Err: errors.New("segment truncated")}
	}
	if !bytes.Equal(data[:len(segMagic)], segMagic) ||
		!bytes.Equal(data[len(data)-len(segMagic):], segMagic) {
		return nil, &cmn.ErrDecodeSegment{Err: errors.New("bad segment magic")}
	}
	ftrLen := int(binary.LittleEndian.Uint32(data[len(data)-tailLen:]))
	ftrEnd := len(data) - tailLen
	if ftrLen <= 0 || ftrLen > ftrEnd {
		return nil, &cmn.ErrDecodeSegment{Err: errors.New("bad footer length")}
	}
	r := &Reader{data: data}
	if err := jsonf.Unmarshal(data[ftrEnd-ftrLen:ftrEnd], &r.ftr); err != nil {
		return nil, &cmn.ErrDecodeSegment{Err: err}
	}
	if len(r.ftr.Blooms) > 0 {
		r.blooms = make(map[string]*prob.Filter, len(r.ftr.Blooms))
		for name, blocks := range r.ftr.Blooms {
			f, err := prob.Decode(blocks)
			if err != nil {
				return nil, &cmn.ErrDecodeSegment{Err: err}
			}
			r.blooms[name] = f
		}
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, &cmn.ErrDecodeSegment{Err: err}
	}
	r.zdec = zdec
	return r, nil
}

func (r *Reader) Schema() meta.Schema   { return r.ftr.Schema }
func (r *Reader) NumRows() int          { return r.ftr.NumRows }
func (r *Reader) NumRowGroups() int     { return len(r.ftr.RowGroups) }
func (r *Reader) SortingColumns() []int { return r.ftr.SortingColumns }

// RowGroupTimeRange is the tight [min, max+1) timestamp range of row group
// i, usable for pruning before any chunk is decoded.
func (r *Reader) RowGroupTimeRange(i int) meta.TimeRange {
	rg := r.ftr.RowGroups[i]
	return meta.TimeRange{Start: rg.TsMin, End: rg.TsMax + 1}
}

// MayContain consults the column's bloom filter, if one was written. A
// false return guarantees the value is absent; true means "possibly
// present". Columns without a filter always report true.
func (r *Reader) MayContain(colName string, t meta.ColumnType, v any) bool {
	f, ok := r.blooms[colName]
	if !ok {
		return true
	}
	return f.Lookup(cellBytes(t, v))
}

// ReadRowGroup decodes row group i. needed lists the column indices to
// materialize (nil means all); columns outside it come back as empty
// placeholders that must not be accessed.
func (r *Reader) ReadRowGroup(i int, needed []int) (RecordBatch, error) {
	rg := r.ftr.RowGroups[i]
	out := RecordBatch{
		Schema:  r.ftr.Schema,
		Columns: make([]Column, len(r.ftr.Schema.Columns)),
	}
	want := func(ci int) bool {
		if needed == nil {
			return true
		}
		for _, w := range needed {
			if w == ci {
				return true
			}
		}
		return false
	}
	for ci, col := range r.ftr.Schema.Columns {
		if !want(ci) {
			continue
		}
		cm := rg.Chunks[ci]
		if cm.Offset+int64(cm.Length) > int64(len(r.data)) {
			return RecordBatch{}, &cmn.ErrDecodeSegment{Err: errors.Errorf("chunk %d out of bounds", ci)}
		}
		body, err := r.decompress(r.data[cm.Offset:cm.Offset+int64(cm.Length)], cm.Compression)
		if err != nil {
			return RecordBatch{}, err
		}
		decoded, err := decodeChunk(body, col.Type, cm.Encoding, rg.NumRows)
		if err != nil {
			return RecordBatch{}, err
		}
		out.Columns[ci] = decoded
	}
	return out, nil
}

// ReadAll decodes every row group into one concatenated batch.
func (r *Reader) ReadAll(needed []int) (RecordBatch, error) {
	out := RecordBatch{
		Schema:  r.ftr.Schema,
		Columns: make([]Column, len(r.ftr.Schema.Columns)),
	}
	for i := range r.ftr.RowGroups {
		rg, err := r.ReadRowGroup(i, needed)
		if err != nil {
			return RecordBatch{}, err
		}
		for ci := range out.Columns {
			if rg.Columns[ci].Values == nil {
				continue
			}
			appendColumn(&out.Columns[ci], rg.Columns[ci])
		}
	}
	return out, nil
}

func appendColumn(dst *Column, src Column) {
	base := len(dst.Values)
	dst.Values = append(dst.Values, src.Values...)
	if src.Valid != nil || dst.Valid != nil {
		if dst.Valid == nil {
			dst.Valid = make([]bool, base)
			for i := range dst.Valid {
				dst.Valid[i] = true
			}
		}
		for i := 0; i < src.Len(); i++ {
			dst.Valid = append(dst.Valid, src.IsValid(i))
		}
	}
}

func (r *Reader) decompress(b []byte, comp Compression) ([]byte, error) {
	switch comp {
	case CompNone, "":
		return b, nil
	case CompZstd:
		out, err := r.zdec.DecodeAll(b, nil)
		if err != nil {
			return nil, &cmn.ErrDecodeSegment{Err: err}
		}
		return out, nil
	case CompLZ4:
		lr := lz4.NewReader(bytes.NewReader(b))
		out, err := io.ReadAll(lr)
		if err != nil {
			return nil, &cmn.ErrDecodeSegment{Err: err}
		}
		return out, nil
	default:
		return nil, &cmn.ErrDecodeSegment{Err: errors.Errorf("unknown compression %q", comp)}
	}
}

func decodeChunk(body []byte, t meta.ColumnType, enc Encoding, n int) (Column, error) {
	if len(body) < 1 {
		return Column{}, &cmn.ErrDecodeSegment{Err: errors.New("empty chunk")}
	}
	col := Column{Values: make([]any, n)}
	pos := 0
	if body[pos] == 1 {
		pos++
		bitmapLen := (n + 7) / 8
		if pos+bitmapLen > len(body) {
			return Column{}, &cmn.ErrDecodeSegment{Err: errors.New("truncated null bitmap")}
		}
		col.Valid = make([]bool, n)
		for i := 0; i < n; i++ {
			col.Valid[i] = body[pos+i/8]&(1<<(i%8)) != 0
		}
		pos += bitmapLen
	} else {
		pos++
	}

	readUvarint := func() (uint64, error) {
		v, m := binary.Uvarint(body[pos:])
		if m <= 0 {
			return 0, &cmn.ErrDecodeSegment{Err: errors.New("truncated varint")}
		}
		pos += m
		return v, nil
	}

	switch enc {
	case EncPlain, "":
		w := fixedWidth(t)
		for i := 0; i < n; i++ {
			var cell []byte
			if w != 0 {
				if pos+w > len(body) {
					return Column{}, &cmn.ErrDecodeSegment{Err: errors.New("truncated values")}
				}
				cell = body[pos : pos+w]
				pos += w
			} else {
				l, err := readUvarint()
				if err != nil {
					return Column{}, err
				}
				if pos+int(l) > len(body) {
					return Column{}, &cmn.ErrDecodeSegment{Err: errors.New("truncated values")}
				}
				cell = body[pos : pos+int(l)]
				pos += int(l)
			}
			col.Values[i] = cellFromBytes(t, cell)
		}
	case EncDict:
		dictCount, err := readUvarint()
		if err != nil {
			return Column{}, err
		}
		entries := make([]any, dictCount)
		for d := uint64(0); d < dictCount; d++ {
			l, err := readUvarint()
			if err != nil {
				return Column{}, err
			}
			if pos+int(l) > len(body) {
				return Column{}, &cmn.ErrDecodeSegment{Err: errors.New("truncated dictionary")}
			}
			entries[d] = cellFromBytes(t, body[pos:pos+int(l)])
			pos += int(l)
		}
		for i := 0; i < n; i++ {
			idx, err := readUvarint()
			if err != nil {
				return Column{}, err
			}
			if dictCount == 0 || !col.IsValid(i) {
				col.Values[i] = zeroValue(t)
				continue
			}
			if idx >= dictCount {
				return Column{}, &cmn.ErrDecodeSegment{Err: errors.Errorf("dict index %d out of range", idx)}
			}
			col.Values[i] = entries[idx]
		}
	default:
		return Column{}, &cmn.ErrDecodeSegment{Err: errors.Errorf("unknown encoding %q", enc)}
	}
	return col, nil
}
