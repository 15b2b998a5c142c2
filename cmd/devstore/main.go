// devstore is a single-binary HTTP object store for development and
// tests: PUT/GET/HEAD/DELETE on /{key}, GET /?list={prefix} for listing.
// It fronts a local-filesystem LocalStore so an engine pointed at it via
// objstore.HTTPStore exercises a real network round trip without cloud
// credentials.
package main

import (
	"bytes"
	"context"
	"flag"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/outpostdb/mergestore/cmn"
	"github.com/outpostdb/mergestore/cmn/fname"
	"github.com/outpostdb/mergestore/cmn/nlog"
	"github.com/outpostdb/mergestore/objstore"
)

func main() {
	var (
		addr    = flag.String("addr", "", "listen address (overrides config)")
		cfgPath = flag.String("config", fname.DevstoreConfig, "path to JSON config")
	)
	flag.Parse()

	cfg, err := cmn.LoadConfig(*cfgPath)
	if err != nil {
		nlog.Errorf("devstore: %v", err)
		return
	}
	nlog.SetLevel(cfg.LogLevel)
	if *addr != "" {
		cfg.Listen = *addr
	}

	store, err := objstore.NewLocalStore(cfg.Mountpaths...)
	if err != nil {
		nlog.Errorf("devstore: %v", err)
		return
	}

	srv := &server{store: store}
	nlog.Infof("devstore listening on %s (mountpaths %v)", cfg.Listen, cfg.Mountpaths)
	if err := fasthttp.ListenAndServe(cfg.Listen, srv.handle); err != nil {
		nlog.Errorf("devstore: serve: %v", err)
	}
}

type server struct {
	store *objstore.LocalStore
}

func (s *server) handle(ctx *fasthttp.RequestCtx) {
	key := string(ctx.Path())
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}

	switch string(ctx.Method()) {
	case fasthttp.MethodPut:
		s.put(ctx, key)
	case fasthttp.MethodGet:
		if prefix := ctx.QueryArgs().Peek("list"); key == "" && prefix != nil {
			s.list(ctx, string(prefix))
			return
		}
		s.get(ctx, key)
	case fasthttp.MethodHead:
		s.stat(ctx, key)
	case fasthttp.MethodDelete:
		s.del(ctx, key)
	default:
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	}
}

func (s *server) put(ctx *fasthttp.RequestCtx, key string) {
	if err := s.store.Put(context.Background(), key, bytes.NewReader(ctx.PostBody())); err != nil {
		nlog.Warningf("devstore: put %s: %v", key, err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func (s *server) get(ctx *fasthttp.RequestCtx, key string) {
	rc, err := s.store.Get(context.Background(), key)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(b)
}

func (s *server) stat(ctx *fasthttp.RequestCtx, key string) {
	oi, err := s.store.Stat(context.Background(), key)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	ctx.Response.Header.SetContentLength(int(oi.Size))
}

func (s *server) list(ctx *fasthttp.RequestCtx, prefix string) {
	objs, err := s.store.List(context.Background(), prefix)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	b, err := jsoniter.Marshal(objs)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}

func (s *server) del(ctx *fasthttp.RequestCtx, key string) {
	if err := s.store.Delete(context.Background(), key); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
}
