package document

import (
	"bytes"
	"errors"

	"capplan/internal/schema"
	"capplan/pkg/capacity"
)

var (
	errNoObject   = errors.New("no opening brace found")
	errUnbalanced = errors.New("no balanced prefix found")
)

// BalancedPrefix returns the shortest prefix of raw, starting at the first
// opening brace, whose structural brace depth returns to zero. Braces inside
// JSON strings are not structural.
func BalancedPrefix(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	if start < 0 {
		return nil, errNoObject
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return nil, errUnbalanced
}

// Recover salvages a document from truncated or trailing-garbage bytes. Only
// the shortest balanced prefix is tried; anything else is CorruptDocument.
func Recover(raw []byte) (capacity.Document, schema.Report, []byte, error) {
	prefix, err := BalancedPrefix(raw)
	if err != nil {
		return capacity.Document{}, schema.Report{}, nil, &capacity.CorruptDocumentError{Offset: int64(len(raw)), Err: err}
	}
	doc, rep, err := Decode(prefix)
	if err != nil {
		return capacity.Document{}, rep, nil, err
	}
	return doc, rep, prefix, nil
}

// RecoverRaw is Recover without the typed decode, for callers that only need
// the salvaged generic tree.
func RecoverRaw(raw []byte) (schema.Raw, []byte, error) {
	prefix, err := BalancedPrefix(raw)
	if err != nil {
		return nil, nil, &capacity.CorruptDocumentError{Offset: int64(len(raw)), Err: err}
	}
	obj, err := DecodeRaw(prefix)
	if err != nil {
		return nil, nil, err
	}
	return obj, prefix, nil
}
