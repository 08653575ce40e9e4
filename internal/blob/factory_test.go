package blob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenNone(t *testing.T) {
	for _, d := range []string{"", "none"} {
		s, err := Open(context.Background(), Config{Driver: d})
		require.NoError(t, err)
		require.Nil(t, s)
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "ftp"})
	require.Error(t, err)
}

func TestOpenS3RequiresBucket(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "s3"})
	require.Error(t, err)
}

// Both local drivers honor the same create-only contract.
func TestLocalDriversContract(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []Config{{Driver: "memory"}, {Driver: "fs", FSRoot: t.TempDir()}} {
		t.Run(cfg.Driver, func(t *testing.T) {
			s, err := Open(ctx, cfg)
			require.NoError(t, err)
			require.Equal(t, Driver(cfg.Driver), s.Driver())

			_, err = s.Head(ctx, "backups/a.json")
			require.ErrorIs(t, err, ErrNotFound)

			info, err := s.Put(ctx, "backups/a.json", bytes.NewReader([]byte("{}")), PutOptions{ContentType: "application/json", Metadata: map[string]string{"stamp": "1"}})
			require.NoError(t, err)
			require.Equal(t, int64(2), info.Size)
			require.Equal(t, "1", info.Metadata["stamp"])

			_, err = s.Put(ctx, "backups/a.json", bytes.NewReader([]byte("[]")), PutOptions{})
			require.ErrorIs(t, err, ErrExists)

			_, rc, err := s.Get(ctx, "backups/a.json")
			require.NoError(t, err)
			b, _ := io.ReadAll(rc)
			require.NoError(t, rc.Close())
			require.Equal(t, "{}", string(b))

			_, err = s.Put(ctx, "other/b.json", bytes.NewReader([]byte("x")), PutOptions{})
			require.NoError(t, err)
			list, err := s.List(ctx, "backups/")
			require.NoError(t, err)
			require.Len(t, list, 1)
			require.Equal(t, "backups/a.json", list[0].Key)

			ok, err := s.Delete(ctx, "backups/a.json")
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = s.Delete(ctx, "backups/a.json")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}
