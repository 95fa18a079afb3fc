package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{Bucket: " "})
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "rcw"})
	require.NoError(t, err)
	assert.Equal(t, "rcw/1.04.010.html", store.ObjectName("/rcw/1.04.010.html"))
	assert.Equal(t, "1.04.010.html", store.ObjectName("1.04.010.html"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "rcw"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "", "text/html", nil)
	assert.Error(t, err)
}
