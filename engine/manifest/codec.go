package manifest

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/core/meta"
)

// Binary framing for manifest objects. Snapshots are an array of FileMeta
// records; deltas carry a sequence number plus the adds/removes of one
// atomic mutation. Field order is fixed; there is no per-field tagging.

func appendFileMeta(b []byte, fm meta.FileMeta) []byte {
	b = msgp.AppendUint64(b, fm.FileID)
	b = msgp.AppendInt64(b, fm.TimeRange.Start)
	b = msgp.AppendInt64(b, fm.TimeRange.End)
	b = msgp.AppendUint64(b, fm.NumRows)
	b = msgp.AppendUint64(b, fm.ByteSize)
	b = msgp.AppendUint64(b, fm.MaxSequence)
	b = msgp.AppendString(b, fm.Checksum)
	return b
}

func readFileMeta(b []byte) (fm meta.FileMeta, rest []byte, err error) {
	if fm.FileID, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return fm, b, &cmn.ErrManifestIO{Err: err}
	}
	if fm.TimeRange.Start, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return fm, b, &cmn.ErrManifestIO{Err: err}
	}
	if fm.TimeRange.End, b, err = msgp.ReadInt64Bytes(b); err != nil {
		return fm, b, &cmn.ErrManifestIO{Err: err}
	}
	if fm.NumRows, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return fm, b, &cmn.ErrManifestIO{Err: err}
	}
	if fm.ByteSize, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return fm, b, &cmn.ErrManifestIO{Err: err}
	}
	if fm.MaxSequence, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return fm, b, &cmn.ErrManifestIO{Err: err}
	}
	if fm.Checksum, b, err = msgp.ReadStringBytes(b); err != nil {
		return fm, b, &cmn.ErrManifestIO{Err: err}
	}
	return fm, b, nil
}

func encodeSnapshot(files []meta.FileMeta) []byte {
	b := msgp.AppendArrayHeader(nil, uint32(len(files)))
	for _, fm := range files {
		b = appendFileMeta(b, fm)
	}
	return b
}

func decodeSnapshot(b []byte) ([]meta.FileMeta, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, &cmn.ErrManifestIO{Err: err}
	}
	files := make([]meta.FileMeta, 0, n)
	for i := uint32(0); i < n; i++ {
		var fm meta.FileMeta
		if fm, b, err = readFileMeta(b); err != nil {
			return nil, err
		}
		files = append(files, fm)
	}
	return files, nil
}

// delta is one durable manifest mutation: the files added and the file ids
// removed, applied atomically on replay.
type delta struct {
	Seq     uint64
	Adds    []meta.FileMeta
	Removes []meta.FileId
}

func encodeDelta(d delta) []byte {
	b := msgp.AppendUint64(nil, d.Seq)
	b = msgp.AppendArrayHeader(b, uint32(len(d.Adds)))
	for _, fm := range d.Adds {
		b = appendFileMeta(b, fm)
	}
	b = msgp.AppendArrayHeader(b, uint32(len(d.Removes)))
	for _, id := range d.Removes {
		b = msgp.AppendUint64(b, id)
	}
	return b
}

func decodeDelta(b []byte) (d delta, err error) {
	if d.Seq, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return d, &cmn.ErrManifestIO{Err: err}
	}
	nAdds, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return d, &cmn.ErrManifestIO{Err: err}
	}
	d.Adds = make([]meta.FileMeta, 0, nAdds)
	for i := uint32(0); i < nAdds; i++ {
		var fm meta.FileMeta
		if fm, b, err = readFileMeta(b); err != nil {
			return d, err
		}
		d.Adds = append(d.Adds, fm)
	}
	nRemoves, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return d, &cmn.ErrManifestIO{Err: err}
	}
	d.Removes = make([]meta.FileId, 0, nRemoves)
	for i := uint32(0); i < nRemoves; i++ {
		var id uint64
		if id, b, err = msgp.ReadUint64Bytes(b); err != nil {
			return d, &cmn.ErrManifestIO{Err: err}
		}
		d.Removes = append(d.Removes, id)
	}
	return d, nil
}
