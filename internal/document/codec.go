// Package document reads, parses and encodes the canonical capacity document.
// The whole document is always materialized; there is no partial read.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"capplan/internal/schema"
	"capplan/pkg/capacity"
)

// Encode renders the persisted textual form of a document: indented JSON with
// a trailing newline and every collection present.
func Encode(doc capacity.Document) ([]byte, error) {
	cp := doc.Clone()
	cp.EnsureCollections()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses persisted bytes, applying the legacy field normalization
// before the typed decode. Failures are reported as *capacity.CorruptDocumentError.
func Decode(data []byte) (capacity.Document, schema.Report, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return capacity.Document{}, schema.Report{}, corrupt(err)
	}
	rep := schema.Normalize(raw)
	doc, err := fromRaw(raw)
	if err != nil {
		return capacity.Document{}, rep, corrupt(err)
	}
	return doc, rep, nil
}

// DecodeRaw parses persisted bytes into the generic JSON tree without
// normalizing it.
func DecodeRaw(data []byte) (schema.Raw, error) {
	raw, err := decodeObject(data)
	if err != nil {
		return nil, corrupt(err)
	}
	return raw, nil
}

// FromRaw converts a generic tree (normalized or not) into a typed document.
func FromRaw(raw schema.Raw) (capacity.Document, error) {
	doc, err := fromRaw(raw)
	if err != nil {
		return capacity.Document{}, corrupt(err)
	}
	return doc, nil
}

// VerifyRoundTrip encodes the document and confirms that re-parsing the
// output reproduces exactly the same bytes. It returns the encoded form.
func VerifyRoundTrip(doc capacity.Document) ([]byte, error) {
	data, err := Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", capacity.ErrSerializationInvariant, err)
	}
	var back capacity.Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&back); err != nil {
		return nil, fmt.Errorf("%w: re-parse: %w", capacity.ErrSerializationInvariant, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", capacity.ErrSerializationInvariant)
	}
	again, err := Encode(back)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encode: %w", capacity.ErrSerializationInvariant, err)
	}
	if !bytes.Equal(data, again) {
		return nil, fmt.Errorf("%w: re-parsed document differs from candidate", capacity.ErrSerializationInvariant)
	}
	return data, nil
}

// DecodeCollection parses a replacement payload (a JSON array) for one
// collection, normalizing legacy field names on every record.
func DecodeCollection(name capacity.CollectionName, payload []byte) (any, schema.Report, error) {
	var items []any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, schema.Report{}, fmt.Errorf("%w: %s payload must be a JSON array: %v", capacity.ErrInvalidArgument, name, err)
	}
	if items == nil {
		items = []any{}
	}
	rep := schema.NormalizeCollection(name, items)
	normalized, err := json.Marshal(items)
	if err != nil {
		return nil, rep, fmt.Errorf("%w: %v", capacity.ErrInvalidArgument, err)
	}
	out, err := typedCollection(name, normalized)
	if err != nil {
		return nil, rep, fmt.Errorf("%w: %s: %v", capacity.ErrInvalidArgument, name, err)
	}
	return out, rep, nil
}

// ReplaceCollection swaps one collection of doc for the typed value returned
// by DecodeCollection.
func ReplaceCollection(doc *capacity.Document, name capacity.CollectionName, value any) error {
	ok := false
	switch name {
	case capacity.CollectionTeamMembers:
		var v []capacity.TeamMember
		if v, ok = value.([]capacity.TeamMember); ok {
			doc.TeamMembers = v
		}
	case capacity.CollectionProjects:
		var v []capacity.Project
		if v, ok = value.([]capacity.Project); ok {
			doc.Projects = v
		}
	case capacity.CollectionAllocations:
		var v []capacity.Allocation
		if v, ok = value.([]capacity.Allocation); ok {
			doc.Allocations = v
		}
	case capacity.CollectionAllocationHistory:
		var v []capacity.HistoryEntry
		if v, ok = value.([]capacity.HistoryEntry); ok {
			doc.AllocationHistory = v
		}
	case capacity.CollectionResourceRoles:
		var v []capacity.ResourceRole
		if v, ok = value.([]capacity.ResourceRole); ok {
			doc.ResourceRoles = v
		}
	case capacity.CollectionTeams:
		var v []capacity.Team
		if v, ok = value.([]capacity.Team); ok {
			doc.Teams = v
		}
	default:
		return fmt.Errorf("%w: %q", capacity.ErrUnknownCollection, name)
	}
	if !ok {
		return fmt.Errorf("%w: value of type %T does not match collection %s", capacity.ErrInvalidArgument, value, name)
	}
	return nil
}

func typedCollection(name capacity.CollectionName, data []byte) (any, error) {
	switch name {
	case capacity.CollectionTeamMembers:
		var v []capacity.TeamMember
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		for i := range v {
			v[i].TeamIDs = capacity.CanonicalTeamIDs(v[i].TeamIDs)
		}
		return v, nil
	case capacity.CollectionProjects:
		var v []capacity.Project
		err := json.Unmarshal(data, &v)
		return v, err
	case capacity.CollectionAllocations:
		var v []capacity.Allocation
		err := json.Unmarshal(data, &v)
		return v, err
	case capacity.CollectionAllocationHistory:
		var v []capacity.HistoryEntry
		err := json.Unmarshal(data, &v)
		return v, err
	case capacity.CollectionResourceRoles:
		var v []capacity.ResourceRole
		err := json.Unmarshal(data, &v)
		return v, err
	case capacity.CollectionTeams:
		var v []capacity.Team
		err := json.Unmarshal(data, &v)
		return v, err
	default:
		return nil, fmt.Errorf("%w: %q", capacity.ErrUnknownCollection, name)
	}
}

func decodeObject(data []byte) (schema.Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after offset %d", dec.InputOffset())
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("top-level value is not an object")
	}
	return obj, nil
}

func fromRaw(raw schema.Raw) (capacity.Document, error) {
	normalized, err := json.Marshal(raw)
	if err != nil {
		return capacity.Document{}, err
	}
	var doc capacity.Document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return capacity.Document{}, err
	}
	for i := range doc.TeamMembers {
		doc.TeamMembers[i].TeamIDs = capacity.CanonicalTeamIDs(doc.TeamMembers[i].TeamIDs)
	}
	doc.EnsureCollections()
	return doc, nil
}

func corrupt(err error) error {
	var ce *capacity.CorruptDocumentError
	if errors.As(err, &ce) {
		return err
	}
	out := &capacity.CorruptDocumentError{Err: err}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		out.Offset = se.Offset
	}
	return out
}
