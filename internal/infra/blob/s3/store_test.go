package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"capplan/internal/blob/core"
)

// fakeS3 serves the subset of the S3 REST API the store uses.
type fakeS3 struct {
	mu    sync.Mutex
	state map[string]stored
}

type stored struct {
	body        []byte
	contentType string
	meta        map[string]string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req), nil
	}
	switch req.Method {
	case http.MethodHead:
		st, ok := f.state[key]
		if !ok {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		return respond(http.StatusOK, nil, st.headers()), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		meta := map[string]string{}
		for k, v := range req.Header {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
				meta[strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")] = v[0]
			}
		}
		f.state[key] = stored{body: body, contentType: req.Header.Get("Content-Type"), meta: meta}
		return respond(http.StatusOK, nil, http.Header{"ETag": {"\"etag\""}}), nil
	case http.MethodGet:
		st, ok := f.state[key]
		if !ok {
			body := []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return respond(http.StatusNotFound, body, http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return respond(http.StatusOK, st.body, st.headers()), nil
	case http.MethodDelete:
		delete(f.state, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (f *fakeS3) list(req *http.Request) *http.Response {
	prefix := req.URL.Query().Get("prefix")
	cont := req.URL.Query().Get("continuation-token")
	var keys []string
	for k := range f.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	// Serve the first key alone to exercise pagination.
	page, truncated := keys, false
	if cont == "" && len(keys) > 1 {
		page, truncated = keys[:1], true
	} else if cont != "" && len(keys) > 1 {
		page = keys[1:]
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult>`)
	if truncated {
		b.WriteString("<IsTruncated>true</IsTruncated><NextContinuationToken>tok</NextContinuationToken>")
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range page {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2025-01-01T00:00:00Z</LastModified></Contents>", k, len(f.state[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

func (s stored) headers() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(s.body))},
		"Content-Type":   {s.contentType},
		"ETag":           {"\"etag\""},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
	for k, v := range s.meta {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func respond(status int, body []byte, h http.Header) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: h, ContentLength: int64(len(body))}
}

// decodeChunked unwraps a single-chunk aws-chunked payload.
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	size := parts[0]
	if i := strings.IndexByte(size, ';'); i >= 0 {
		size = size[:i]
	}
	n, err := strconv.ParseInt(size, 16, 64)
	if err != nil || n <= 0 || int64(len(parts[1])) != n {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Config{
		Bucket:          "capplan-backups",
		Region:          "us-east-1",
		Endpoint:        "https://fake.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: &fakeS3{state: make(map[string]stored)}},
	})
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore(t)
	require.Equal(t, core.DriverS3, s.Driver())

	info, err := s.Put(ctx, "backups/capacity.backup.1.json", strings.NewReader(`{"a":1}`), core.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	require.Equal(t, "backups/capacity.backup.1.json", info.Key)
	require.Equal(t, int64(7), info.Size)
	require.Equal(t, "application/json", info.ContentType)

	_, err = s.Put(ctx, "backups/capacity.backup.1.json", strings.NewReader("x"), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	_, rc, err := s.Get(ctx, "backups/capacity.backup.1.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, `{"a":1}`, string(data))

	_, err = s.Put(ctx, "backups/capacity.backup.2.json", strings.NewReader("{}"), core.PutOptions{})
	require.NoError(t, err)
	list, err := s.List(ctx, "backups/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "backups/capacity.backup.1.json", list[0].Key)

	ok, err := s.Delete(ctx, "backups/capacity.backup.1.json")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Delete(ctx, "backups/capacity.backup.1.json")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore(t)
	_, err := s.Head(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
