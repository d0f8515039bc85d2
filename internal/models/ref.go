// Package models defines core data structures for object references,
// screenshot records, and API payloads.
package models

import (
	"fmt"
	"path"
	"strings"
)

// ObjectRef identifies a blob in the object store. Immutable value.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"object_key"`
}

// Validate returns an error when bucket or key is empty.
func (r ObjectRef) Validate() error {
	if r.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}
	if r.Key == "" {
		return fmt.Errorf("object_key cannot be empty")
	}
	return nil
}

// String returns "bucket/key" for logs and dedup keys.
func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// Title derives a human-friendly title from the object key (its base name).
func (r ObjectRef) Title() string {
	return path.Base(r.Key)
}

// ProcessedKey derives the processed-object key from the source key:
// the stem with a ".processed.<ext>" suffix, in the same directory.
func (r ObjectRef) ProcessedKey(ext string) string {
	dir := path.Dir(r.Key)
	base := path.Base(r.Key)
	stem := strings.TrimSuffix(base, path.Ext(base))
	name := stem + ".processed." + ext
	if dir == "." {
		return name
	}
	return path.Join(dir, name)
}
