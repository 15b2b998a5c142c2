//go:build gcp

package objstore

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
)

// GCSStore backs an engine rooted at a gs:// path.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "gcsstore: new client")
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (g *GCSStore) obj(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(key)
}

func (g *GCSStore) Put(ctx context.Context, key string, r io.Reader) error {
	w := g.obj(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return errors.Wrapf(err, "gcsstore: put %s", key)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "gcsstore: finalize %s", key)
	}
	return nil
}

func (g *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.obj(key).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "gcsstore: get %s", key)
	}
	return r, nil
}

func (g *GCSStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	attrs, err := g.obj(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "gcsstore: stat %s", key)
	}
	return ObjectInfo{Key: key, Size: attrs.Size}, nil
}

func (g *GCSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "gcsstore: list %s", prefix)
		}
		out = append(out, ObjectInfo{Key: attrs.Name, Size: attrs.Size})
	}
	return out, nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	if err := g.obj(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Wrapf(err, "gcsstore: delete %s", key)
	}
	return nil
}

var _ Store = (*GCSStore)(nil)
