package storage

import (
	"context"
	"io"
)

// Object is one chunk payload handed to a Storage backend.
type Object struct {
	// Name is the file name shown in the remote store, e.g. "chunk_3.bin".
	Name string
	// Caption is an optional human readable label.
	Caption string
	// Size is the payload length in bytes, or -1 when unknown.
	Size int64
	Body io.Reader
}

// Storage is a remote object store addressed by opaque reference ids.
//
// Put makes exactly one upload request and returns the id assigned by the
// backend; Get writes the full object to w. Both return *vaulterr.Error
// values classified as RemoteTransient, RemoteRejected or RemoteNotFound.
type Storage interface {
	Put(ctx context.Context, obj Object) (string, error)
	Get(ctx context.Context, id string, w io.Writer) (int64, error)
	Close() error
}
