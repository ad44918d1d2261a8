package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pairgo/blobstore"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, int64(8*1024*1024), o.PartSize)
	assert.Equal(t, 5, o.Concurrency)
}

func TestKeyPrefixing(t *testing.T) {
	s := &Store{prefix: "pairs"}
	assert.Equal(t, "pairs/runs/x/manifest.json", s.key("runs/x/manifest.json"))

	s = &Store{}
	assert.Equal(t, "runs/x/manifest.json", s.key("runs/x/manifest.json"))
}

// TestIntegration runs the full store contract against a real bucket. Set
// PAIRGO_TEST_S3_BUCKET (and the usual AWS environment) to enable.
func TestIntegration(t *testing.T) {
	bucket := os.Getenv("PAIRGO_TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("PAIRGO_TEST_S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	prefix := fmt.Sprintf("pairgo-test/%d", time.Now().UnixNano())
	store := NewStore(s3.NewFromConfig(cfg), bucket, prefix)

	t.Cleanup(func() {
		names, err := store.List(ctx, "")
		if err != nil {
			return
		}
		for _, name := range names {
			_ = store.Delete(ctx, name)
		}
	})

	payload := strings.Repeat("pairgo", 1000)
	require.NoError(t, store.Put(ctx, "runs/a/pairs.csv", strings.NewReader(payload)))

	blob, err := store.Open(ctx, "runs/a/pairs.csv")
	require.NoError(t, err)
	defer blob.Close()
	assert.Equal(t, int64(len(payload)), blob.Size())

	data, err := io.ReadAll(blobstore.NewReader(blob))
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))

	// Ranged read.
	head := make([]byte, 6)
	_, err = blob.ReadAt(head, 0)
	require.NoError(t, err)
	assert.Equal(t, "pairgo", string(head))

	names, err := store.List(ctx, "runs/")
	require.NoError(t, err)
	assert.Contains(t, names, "runs/a/pairs.csv")

	_, err = store.Open(ctx, "runs/a/missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "runs/a/pairs.csv"))
	_, err = store.Open(ctx, "runs/a/pairs.csv")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
