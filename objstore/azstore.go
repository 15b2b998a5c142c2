//go:build azure

package objstore

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/pkg/errors"
)

// AzStore backs an engine rooted at an az:// path (shared key credential,
// container client).
type AzStore struct {
	container *container.Client
}

func NewAzStore(accountURL, accountName, accountKey, containerName string) (*AzStore, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, errors.Wrap(err, "azstore: shared key credential")
	}
	client, err := azblob.NewClientWithSharedKeyCredential(accountURL, cred, nil)
	if err != nil {
		return nil, errors.Wrap(err, "azstore: new service client")
	}
	return &AzStore{container: client.ServiceClient().NewContainerClient(containerName)}, nil
}

func (a *AzStore) blob(key string) *blockblob.Client {
	return a.container.NewBlockBlobClient(key)
}

func (a *AzStore) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := a.blob(key).UploadStream(ctx, r, nil)
	if err != nil {
		return errors.Wrapf(err, "azstore: put %s", key)
	}
	return nil
}

func (a *AzStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := a.blob(key).DownloadStream(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "azstore: get %s", key)
	}
	return resp.Body, nil
}

func (a *AzStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	props, err := a.blob(key).GetProperties(ctx, nil)
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "azstore: stat %s", key)
	}
	size := int64(0)
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	return ObjectInfo{Key: key, Size: size}, nil
}

func (a *AzStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	pager := a.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "azstore: list %s", prefix)
		}
		for _, item := range page.Segment.BlobItems {
			size := int64(0)
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			out = append(out, ObjectInfo{Key: *item.Name, Size: size})
		}
	}
	return out, nil
}

func (a *AzStore) Delete(ctx context.Context, key string) error {
	_, err := a.blob(key).Delete(ctx, nil)
	var respErr *azcore.ResponseError
	if err != nil && !(errors.As(err, &respErr) && respErr.StatusCode == 404) {
		return errors.Wrapf(err, "azstore: delete %s", key)
	}
	return nil
}

var _ Store = (*AzStore)(nil)
