package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves aged, settled records out of the hot store into object
// storage. Deletion from the primary store is a separate, explicit step run
// only after the archive has been verified.
type Archiver interface {
	// ArchiveBets uploads every settled bet placed before the cutoff and
	// returns the number of records archived.
	ArchiveBets(ctx context.Context, before time.Time) (int64, error)
	// ArchiveAudit uploads every audit entry recorded before the cutoff and
	// returns the number of records archived.
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
