package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	for _, in := range []string{"up", "DOWN", "Status"} {
		_, err := ParseCommand(in)
		assert.NoError(t, err, in)
	}

	_, err := ParseCommand("redo")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dir := range []string{"postgres", "clickhouse"} {
		entries, err := fs.ReadDir(FS, dir)
		require.NoError(t, err)
		require.NotEmpty(t, entries, dir)

		for _, e := range entries {
			data, err := fs.ReadFile(FS, dir+"/"+e.Name())
			require.NoError(t, err)
			assert.Contains(t, string(data), "-- +goose Up", e.Name())
			assert.Contains(t, string(data), "-- +goose Down", e.Name())
		}
	}
}
