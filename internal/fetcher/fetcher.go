// Package fetcher downloads catalog data from HTTP and FTP sources and
// unpacks the container formats items arrive in (ZIP, XLSX, JSON).
package fetcher

import (
	"context"
	"io"
)

// Fetcher is the download surface catalog items depend on. Tests substitute
// a fixture-backed implementation.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into a local file and reports bytes
	// written. Used for archives that must land on disk before extraction.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// HeadETag returns the ETag header for the URL without fetching the body.
	HeadETag(ctx context.Context, url string) (string, error)

	// DownloadIfChanged fetches the URL only if its ETag differs from the
	// given one. Returns (body, newETag, changed, error); when unchanged the
	// body is nil.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
