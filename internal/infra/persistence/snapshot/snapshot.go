// Package snapshot converts the document to and from per-collection buckets,
// the shape in which relational mirrors store it.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"capplan/internal/document"
	"capplan/pkg/capacity"
)

// ErrEmpty is returned when a mirror holds no document yet.
var ErrEmpty = errors.New("mirror holds no document")

// Bucket is one stored collection.
type Bucket struct {
	Name    capacity.CollectionName
	Payload []byte
}

// Buckets encodes every collection as a JSON array, in persisted order.
func Buckets(doc capacity.Document) ([]Bucket, error) {
	d := doc.Clone()
	d.EnsureCollections()
	out := make([]Bucket, 0, len(capacity.Collections))
	for _, name := range capacity.Collections {
		v, err := d.Collection(name)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out = append(out, Bucket{Name: name, Payload: data})
	}
	return out, nil
}

// Assemble rebuilds a document from stored buckets. Unknown bucket names are
// skipped; legacy field names inside payloads are normalized.
func Assemble(buckets []Bucket) (capacity.Document, error) {
	if len(buckets) == 0 {
		return capacity.Document{}, ErrEmpty
	}
	doc := capacity.NewDocument()
	for _, b := range buckets {
		if _, err := capacity.ParseCollectionName(string(b.Name)); err != nil {
			continue
		}
		v, _, err := document.DecodeCollection(b.Name, b.Payload)
		if err != nil {
			return capacity.Document{}, fmt.Errorf("decode %s: %w", b.Name, err)
		}
		if err := document.ReplaceCollection(&doc, b.Name, v); err != nil {
			return capacity.Document{}, err
		}
	}
	doc.EnsureCollections()
	return doc, nil
}
