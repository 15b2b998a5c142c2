package objstore

import (
	"bytes"
	"context"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// HTTPStore talks to a devstore server (cmd/devstore): a plain HTTP
// object store for development and tests, so the engine exercises a real
// network round trip without cloud credentials.
type HTTPStore struct {
	client *fasthttp.Client
	base   string // e.g. http://127.0.0.1:8080
}

func NewHTTPStore(base string) *HTTPStore {
	return &HTTPStore{
		client: &fasthttp.Client{
			MaxIdleConnDuration: time.Minute,
		},
		base: base,
	}
}

func (s *HTTPStore) url(key string) string { return s.base + "/" + key }

func (s *HTTPStore) do(method, uri string, body io.Reader) (*fasthttp.Response, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != nil {
		req.SetBodyStream(body, -1)
	}
	resp := fasthttp.AcquireResponse()
	if err := s.client.Do(req, resp); err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, err
	}
	if resp.StatusCode() >= 400 {
		code := resp.StatusCode()
		fasthttp.ReleaseResponse(resp)
		return nil, errors.Errorf("httpstore: %s %s: status %d", method, uri, code)
	}
	return resp, nil
}

func (s *HTTPStore) Put(_ context.Context, key string, r io.Reader) error {
	resp, err := s.do(fasthttp.MethodPut, s.url(key), r)
	if err != nil {
		return errors.Wrapf(err, "httpstore: put %s", key)
	}
	fasthttp.ReleaseResponse(resp)
	return nil
}

func (s *HTTPStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.do(fasthttp.MethodGet, s.url(key), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "httpstore: get %s", key)
	}
	body := append([]byte(nil), resp.Body()...)
	fasthttp.ReleaseResponse(resp)
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *HTTPStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	resp, err := s.do(fasthttp.MethodHead, s.url(key), nil)
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "httpstore: stat %s", key)
	}
	size := int64(resp.Header.ContentLength())
	fasthttp.ReleaseResponse(resp)
	return ObjectInfo{Key: key, Size: size}, nil
}

func (s *HTTPStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	uri := s.base + "/?list=" + prefix
	resp, err := s.do(fasthttp.MethodGet, uri, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "httpstore: list %s", prefix)
	}
	var out []ObjectInfo
	err = jsoniter.Unmarshal(resp.Body(), &out)
	fasthttp.ReleaseResponse(resp)
	if err != nil {
		return nil, errors.Wrapf(err, "httpstore: decode list %s", prefix)
	}
	return out, nil
}

func (s *HTTPStore) Delete(_ context.Context, key string) error {
	resp, err := s.do(fasthttp.MethodDelete, s.url(key), nil)
	if err != nil {
		return errors.Wrapf(err, "httpstore: delete %s", key)
	}
	fasthttp.ReleaseResponse(resp)
	return nil
}

var _ Store = (*HTTPStore)(nil)
