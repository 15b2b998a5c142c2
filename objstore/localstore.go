package objstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"

	"github.com/outpostdb/mergestore/cmn/cos"
)

// LocalStore is the default dev/test object-store backend: a directory
// tree on local disk, optionally spread across several mountpaths chosen
// by highest-random-weight hashing so a key always lands on the same
// mountpath while the set is stable.
type LocalStore struct {
	mountpaths []string
	digests    []uint64
}

// NewLocalStore roots a LocalStore across one or more local directories.
// Each directory is created if missing.
func NewLocalStore(mountpaths ...string) (*LocalStore, error) {
	if len(mountpaths) == 0 {
		return nil, errors.New("localstore: at least one mountpath is required")
	}
	digests := make([]uint64, len(mountpaths))
	for i, mp := range mountpaths {
		if err := os.MkdirAll(mp, 0o755); err != nil {
			return nil, errors.Wrapf(err, "localstore: mkdir %s", mp)
		}
		digests[i] = cos.Checksum64(cos.UnsafeB(mp))
	}
	return &LocalStore{mountpaths: mountpaths, digests: digests}, nil
}

// pick selects the mountpath for key: the mountpath whose (path digest XOR
// key digest) is largest wins.
func (l *LocalStore) pick(key string) string {
	if len(l.mountpaths) == 1 {
		return l.mountpaths[0]
	}
	digest := cos.Checksum64(cos.UnsafeB(key))
	best, bestIdx := uint64(0), 0
	for i, d := range l.digests {
		cand := d ^ digest
		if cand >= best {
			best, bestIdx = cand, i
		}
	}
	return l.mountpaths[bestIdx]
}

func (l *LocalStore) path(key string) string {
	return filepath.Join(l.pick(key), filepath.FromSlash(key))
}

func (l *LocalStore) Put(_ context.Context, key string, r io.Reader) error {
	fpath := l.path(key)
	if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
		return errors.Wrapf(err, "localstore: mkdir for %s", key)
	}
	tmp := fpath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "localstore: create %s", key)
	}
	h := xxhash.New64()
	if _, err := io.Copy(io.MultiWriter(f, h), r); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "localstore: write %s", key)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "localstore: close %s", key)
	}
	// rename is the local stand-in for "upload commits atomically or not
	// at all"; a crash mid-write leaves only the .tmp orphan.
	return os.Rename(tmp, fpath)
}

func (l *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		return nil, errors.Wrapf(err, "localstore: open %s", key)
	}
	return f, nil
}

func (l *LocalStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	fi, err := os.Stat(l.path(key))
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "localstore: stat %s", key)
	}
	return ObjectInfo{Key: key, Size: fi.Size()}, nil
}

func (l *LocalStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	seen := map[string]ObjectInfo{}
	for _, mp := range l.mountpaths {
		root := filepath.Join(mp, filepath.FromSlash(prefix))
		_ = filepath.WalkDir(filepath.Dir(root), func(p string, d os.DirEntry, err error) error {
			if err != nil || d == nil || d.IsDir() {
				return nil
			}
			if strings.HasSuffix(p, ".tmp") {
				return nil
			}
			rel, rerr := filepath.Rel(mp, p)
			if rerr != nil {
				return nil
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			fi, ferr := d.Info()
			if ferr != nil {
				return nil
			}
			seen[key] = ObjectInfo{Key: key, Size: fi.Size()}
			return nil
		})
	}
	out := make([]ObjectInfo, 0, len(seen))
	for _, oi := range seen {
		out = append(out, oi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "localstore: remove %s", key)
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
