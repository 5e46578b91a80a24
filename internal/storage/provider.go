package storage

import "io"

// Provider defines the behavior for any archive backend. Keys are
// slash-separated, e.g. "mysession/frames/frame_000001.jpg".
type Provider interface {
	Put(key string, body io.ReadSeeker, contentType string) error
	List(prefix string) ([]string, error)
	Delete(key string) error
}
