package main

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/ausmap/geocat-cli/internal/catalog"
	"github.com/ausmap/geocat-cli/internal/region"
)

// fakeFetcher serves canned bodies by URL, answering conditional fetches
// from an optional etag table.
type fakeFetcher struct {
	files map[string][]byte
	etags map[string]string
}

func (f *fakeFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	data, ok := f.files[url]
	if !ok {
		return nil, eris.Errorf("no fixture for %s", url)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFetcher) DownloadToFile(_ context.Context, url, path string) (int64, error) {
	data, ok := f.files[url]
	if !ok {
		return 0, eris.Errorf("no fixture for %s", url)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (f *fakeFetcher) HeadETag(_ context.Context, url string) (string, error) {
	return f.etags[url], nil
}

func (f *fakeFetcher) DownloadIfChanged(ctx context.Context, url, etag string) (io.ReadCloser, string, bool, error) {
	current := f.etags[url]
	if etag != "" && etag == current {
		return nil, etag, false, nil
	}
	rc, err := f.Download(ctx, url)
	if err != nil {
		return nil, "", false, err
	}
	return rc, current, true, nil
}

// fakeProvider enumerates canned region identifier lists.
type fakeProvider struct {
	ids map[string][]int
}

func (f *fakeProvider) EnumerateIDs(_ context.Context, dataset, _ string) ([]int, error) {
	ids, ok := f.ids[dataset]
	if !ok {
		return nil, eris.Errorf("no such dataset %s", dataset)
	}
	return ids, nil
}

// newTestDeps wires a dependency set with a postcode identifier table and
// recording layers.
func newTestDeps(files map[string][]byte) *catalog.Deps {
	prov := &fakeProvider{ids: map[string][]int{
		"region_map:FID_POA_2011_AUST": {2600, 2601},
	}}
	return &catalog.Deps{
		Fetcher:         &fakeFetcher{files: files},
		Mapper:          region.NewMapper(region.DefaultRegistry(), region.NewIDCache(prov, nil)),
		NewImageryLayer: func() catalog.ImageryLayer { return &catalog.RecordingLayer{} },
		NewVectorLayer:  func() catalog.VectorLayer { return &catalog.RecordingLayer{} },
	}
}
