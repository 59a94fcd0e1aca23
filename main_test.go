package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpupo63/portfolio-api/config"
	"github.com/rpupo63/portfolio-api/errs"
)

func TestOpenStoreConfigErrors(t *testing.T) {
	cases := map[string][]string{
		"MONGODB_URI":  {"DB_TYPE=mongo"},
		"POSTGRES_DSN": {"DB_TYPE=postgres"},
		"DB_TYPE":      {"DB_TYPE=cassandra"},
	}
	for key, env := range cases {
		_, err := openStore(context.Background(), config.FromEntries(env))
		require.Error(t, err, key)
		assert.True(t, errs.IsConfigError(err), key)
		assert.Contains(t, err.Error(), key)
	}

	store, err := openStore(context.Background(), config.FromEntries([]string{"DB_TYPE=memory"}))
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Kind())
}

func TestNewFileStoreRequiresBucket(t *testing.T) {
	_, err := newFileStore(context.Background(), config.FromEntries([]string{"UPLOAD_BACKEND=s3"}))
	assert.True(t, errs.IsConfigError(err))

	files, err := newFileStore(context.Background(), config.FromEntries([]string{"UPLOAD_DIR=" + t.TempDir()}))
	require.NoError(t, err)
	assert.NotNil(t, files)
}
