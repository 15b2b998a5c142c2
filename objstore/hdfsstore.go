//go:build hdfs

package objstore

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/colinmarc/hdfs/v2"
	"github.com/pkg/errors"
)

// HDFSStore backs an engine rooted at an hdfs:// path, for on-prem
// deployments without a cloud object store.
type HDFSStore struct {
	client *hdfs.Client
	base   string
}

func NewHDFSStore(namenode, base string) (*HDFSStore, error) {
	client, err := hdfs.New(namenode)
	if err != nil {
		return nil, errors.Wrap(err, "hdfsstore: connect")
	}
	if err := client.MkdirAll(base, 0o755); err != nil {
		return nil, errors.Wrapf(err, "hdfsstore: mkdir %s", base)
	}
	return &HDFSStore{client: client, base: base}, nil
}

func (h *HDFSStore) path(key string) string { return path.Join(h.base, key) }

func (h *HDFSStore) Put(_ context.Context, key string, r io.Reader) error {
	fpath := h.path(key)
	if err := h.client.MkdirAll(path.Dir(fpath), 0o755); err != nil {
		return errors.Wrapf(err, "hdfsstore: mkdir for %s", key)
	}
	tmp := fpath + ".tmp"
	h.client.Remove(tmp)
	w, err := h.client.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "hdfsstore: create %s", key)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		h.client.Remove(tmp)
		return errors.Wrapf(err, "hdfsstore: write %s", key)
	}
	if err := w.Close(); err != nil {
		h.client.Remove(tmp)
		return errors.Wrapf(err, "hdfsstore: close %s", key)
	}
	h.client.Remove(fpath)
	return errors.Wrapf(h.client.Rename(tmp, fpath), "hdfsstore: commit %s", key)
}

func (h *HDFSStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := h.client.Open(h.path(key))
	if err != nil {
		return nil, errors.Wrapf(err, "hdfsstore: open %s", key)
	}
	return f, nil
}

func (h *HDFSStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	fi, err := h.client.Stat(h.path(key))
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "hdfsstore: stat %s", key)
	}
	return ObjectInfo{Key: key, Size: fi.Size()}, nil
}

func (h *HDFSStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	root := path.Join(h.base, path.Dir(prefix))
	err := h.client.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		rel := p[len(h.base)+1:]
		if len(rel) >= len(prefix) && rel[:len(prefix)] == prefix {
			out = append(out, ObjectInfo{Key: rel, Size: fi.Size()})
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "hdfsstore: list %s", prefix)
	}
	return out, nil
}

func (h *HDFSStore) Delete(_ context.Context, key string) error {
	if err := h.client.Remove(h.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "hdfsstore: remove %s", key)
	}
	return nil
}

var _ Store = (*HDFSStore)(nil)
