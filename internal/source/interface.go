package source

import "context"

// ImageItem is one image file offered by a source for ingestion.
type ImageItem struct {
	SourceID  string // unique within the source
	Filename  string // original name, used to derive the extension
	LocalPath string
	Size      int64
}

// Source enumerates images to ingest in pages.
type Source interface {
	// GetSourceID returns a stable identifier such as "localdir:/path".
	GetSourceID() string

	// FetchBatch returns up to limit items after cursor and the cursor of the
	// next page, or "" when there is none.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []ImageItem, nextCursor string, err error)
}
