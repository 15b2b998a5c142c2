package segment

import (
	"bytes"
	"encoding/binary"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/cmn/prob"
	"github.com/outpostdb/mergestore/core/meta"
)

// Segment file layout:
//
//	magic | row-group column chunks ... | footer JSON | footer len (u32) | magic
//
// Chunks are per-column, per-row-group, individually compressed. The
// footer carries schema, row-group boundaries with timestamp stats, chunk
// offsets, optional sorting-columns descriptor, and optional per-column
// bloom filters.
var segMagic = []byte("MSG1")

type chunkMeta struct {
	Offset      int64       `json:"offset"`
	Length      int         `json:"length"`
	Encoding    Encoding    `json:"encoding"`
	Compression Compression `json:"compression"`
}

type rowGroupMeta struct {
	NumRows int         `json:"num_rows"`
	TsMin   int64       `json:"ts_min"`
	TsMax   int64       `json:"ts_max"`
	Chunks  []chunkMeta `json:"chunks"`
}

type footer struct {
	Schema         meta.Schema         `json:"schema"`
	NumRows        int                 `json:"num_rows"`
	SortingColumns []int               `json:"sorting_columns,omitempty"`
	RowGroups      []rowGroupMeta      `json:"row_groups"`
	Blooms         map[string][][]byte `json:"blooms,omitempty"`
}

var jsonf = jsoniter.ConfigCompatibleWithStandardLibrary

// Writer encodes sorted record batches into the segment file format. Rows
// are accumulated and cut into row groups of MaxRowGroupSize; Close writes
// the footer. Writer is not safe for concurrent use.
type Writer struct {
	w       io.Writer
	schema  meta.Schema
	opts    WriteOptions
	offset  int64
	pending RecordBatch
	ftr     footer
	blooms  map[string]*prob.Filter
	zenc    *zstd.Encoder
}

func NewWriter(w io.Writer, schema meta.Schema, opts WriteOptions) (*Writer, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	opts.Sanitize()
	sw := &Writer{
		w:      w,
		schema: schema,
		opts:   opts,
		blooms: make(map[string]*prob.Filter),
		pending: RecordBatch{
			Schema:  schema,
			Columns: make([]Column, len(schema.Columns)),
		},
	}
	sw.ftr.Schema = schema
	if opts.EnableSortingColumns {
		for i := 0; i < schema.NumPrimaryKey; i++ {
			sw.ftr.SortingColumns = append(sw.ftr.SortingColumns, i)
		}
		sw.ftr.SortingColumns = append(sw.ftr.SortingColumns, schema.TimestampIndex)
	}
	for _, col := range schema.Columns {
		if opts.colBloom(col.Name) {
			sw.blooms[col.Name] = prob.NewDefaultFilter()
		}
	}
	zenc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, &cmn.ErrEncodeSegment{Err: err}
	}
	sw.zenc = zenc
	if err := sw.writeRaw(segMagic); err != nil {
		return nil, err
	}
	return sw, nil
}

// Write appends b's rows (already sorted by the caller) to the file,
// cutting row groups as MaxRowGroupSize fills. Rows are staged in
// WriteBatchSize slices.
func (sw *Writer) Write(b RecordBatch) error {
	if !b.Schema.Equal(sw.schema) {
		return &cmn.ErrSchemaMismatch{Reason: "segment writer batch schema differs"}
	}
	n := b.NumRows()
	for start := 0; start < n; start += sw.opts.WriteBatchSize {
		end := start + sw.opts.WriteBatchSize
		if end > n {
			end = n
		}
		sw.stage(b.Slice(start, end))
		for sw.pending.NumRows() >= sw.opts.MaxRowGroupSize {
			if err := sw.flushRowGroup(sw.opts.MaxRowGroupSize); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes the final partial row group and writes the footer. The
// returned count is the total number of rows written.
func (sw *Writer) Close() (numRows uint64, err error) {
	if sw.pending.NumRows() > 0 {
		if err := sw.flushRowGroup(sw.pending.NumRows()); err != nil {
			return 0, err
		}
	}
	for name, f := range sw.blooms {
		if sw.ftr.Blooms == nil {
			sw.ftr.Blooms = make(map[string][][]byte)
		}
		sw.ftr.Blooms[name] = f.Encode()
	}
	ftrBytes, err := jsonf.Marshal(&sw.ftr)
	if err != nil {
		return 0, &cmn.ErrEncodeSegment{Err: err}
	}
	if err := sw.writeRaw(ftrBytes); err != nil {
		return 0, err
	}
	var tail [4]byte
	binary.LittleEndian.PutUint32(tail[:], uint32(len(ftrBytes)))
	if err := sw.writeRaw(tail[:]); err != nil {
		return 0, err
	}
	if err := sw.writeRaw(segMagic); err != nil {
		return 0, err
	}
	sw.zenc.Close()
	return uint64(sw.ftr.NumRows), nil
}

func (sw *Writer) writeRaw(b []byte) error {
	n, err := sw.w.Write(b)
	sw.offset += int64(n)
	if err != nil {
		return &cmn.ErrEncodeSegment{Err: err}
	}
	return nil
}

// stage appends rows to the pending row group, copying cell references.
func (sw *Writer) stage(b RecordBatch) {
	for ci := range sw.pending.Columns {
		src := b.Columns[ci]
		dst := &sw.pending.Columns[ci]
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
}

func (sw *Writer) flushRowGroup(n int) error {
	rg := sw.pending.Slice(0, n)
	rest := sw.pending.Slice(n, sw.pending.NumRows())
	sw.pending = rest

	tsCol := rg.Columns[sw.schema.TimestampIndex]
	rgm := rowGroupMeta{NumRows: n, Chunks: make([]chunkMeta, len(sw.schema.Columns))}
	first := true
	for i := 0; i < tsCol.Len(); i++ {
		if !tsCol.IsValid(i) {
			continue
		}
		v := tsCol.Values[i].(int64)
		if first {
			rgm.TsMin, rgm.TsMax = v, v
			first = false
			continue
		}
		if v < rgm.TsMin {
			rgm.TsMin = v
		}
		if v > rgm.TsMax {
			rgm.TsMax = v
		}
	}

	for ci, col := range sw.schema.Columns {
		enc := sw.opts.colEncoding(col.Name)
		if enc == EncDict && fixedWidth(col.Type) != 0 {
			// dictionaries only pay off for variable-length columns
			enc = EncPlain
		}
		comp := sw.opts.colCompression(col.Name)
		body, err := encodeChunk(rg.Columns[ci], col.Type, enc)
		if err != nil {
			return err
		}
		compressed, err := sw.compress(body, comp)
		if err != nil {
			return err
		}
		rgm.Chunks[ci] = chunkMeta{
			Offset:      sw.offset,
			Length:      len(compressed),
			Encoding:    enc,
			Compression: comp,
		}
		if err := sw.writeRaw(compressed); err != nil {
			return err
		}
		if f, ok := sw.blooms[col.Name]; ok {
			c := rg.Columns[ci]
			for i := 0; i < c.Len(); i++ {
				if c.IsValid(i) {
					f.Insert(cellBytes(col.Type, c.Values[i]))
				}
			}
		}
	}

	sw.ftr.NumRows += n
	sw.ftr.RowGroups = append(sw.ftr.RowGroups, rgm)
	return nil
}

func (sw *Writer) compress(body []byte, comp Compression) ([]byte, error) {
	switch comp {
	case CompNone, "":
		return body, nil
	case CompZstd:
		return sw.zenc.EncodeAll(body, nil), nil
	case CompLZ4:
		var buf bytes.Buffer
		lw := lz4.NewWriter(&buf)
		if _, err := lw.Write(body); err != nil {
			return nil, &cmn.ErrEncodeSegment{Err: err}
		}
		if err := lw.Close(); err != nil {
			return nil, &cmn.ErrEncodeSegment{Err: err}
		}
		return buf.Bytes(), nil
	default:
		return nil, &cmn.ErrEncodeSegment{Err: errors.Errorf("unknown compression %q", comp)}
	}
}

// encodeChunk serializes one column of one row group:
//
//	hasNulls (1 byte) | null bitmap? | values
//
// Plain fixed-width values are packed back to back; variable-length values
// are uvarint-length-prefixed; dict encoding writes the dictionary followed
// by per-row uvarint indexes.
func encodeChunk(c Column, t meta.ColumnType, enc Encoding) ([]byte, error) {
	n := c.Len()
	var buf bytes.Buffer

	hasNulls := false
	for i := 0; i < n; i++ {
		if !c.IsValid(i) {
			hasNulls = true
			break
		}
	}
	if hasNulls {
		buf.WriteByte(1)
		bitmap := make([]byte, (n+7)/8)
		for i := 0; i < n; i++ {
			if c.IsValid(i) {
				bitmap[i/8] |= 1 << (i % 8)
			}
		}
		buf.Write(bitmap)
	} else {
		buf.WriteByte(0)
	}

	var scratch [binary.MaxVarintLen64]byte
	putUvarint := func(v uint64) {
		m := binary.PutUvarint(scratch[:], v)
		buf.Write(scratch[:m])
	}

	switch enc {
	case EncPlain, "":
		for i := 0; i < n; i++ {
			v := c.Values[i]
			if !c.IsValid(i) {
				v = zeroValue(t)
			}
			b := cellBytes(t, v)
			if fixedWidth(t) == 0 {
				putUvarint(uint64(len(b)))
			}
			buf.Write(b)
		}
	case EncDict:
		dict := make(map[string]uint64)
		var entries [][]byte
		indexes := make([]uint64, n)
		for i := 0; i < n; i++ {
			if !c.IsValid(i) {
				indexes[i] = 0
				continue
			}
			b := cellBytes(t, c.Values[i])
			idx, ok := dict[string(b)]
			if !ok {
				idx = uint64(len(entries))
				dict[string(b)] = idx
				entries = append(entries, b)
			}
			indexes[i] = idx
		}
		putUvarint(uint64(len(entries)))
		for _, e := range entries {
			putUvarint(uint64(len(e)))
			buf.Write(e)
		}
		for _, idx := range indexes {
			putUvarint(idx)
		}
	default:
		return nil, &cmn.ErrEncodeSegment{Err: errors.Errorf("unknown encoding %q", enc)}
	}
	return buf.Bytes(), nil
}
