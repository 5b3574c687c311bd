package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// migrate runs one command against dbPath and returns what it printed.
func migrate(t *testing.T, dbPath, command string) (string, error) {
	t.Helper()
	var opts options
	opts.DB = dbPath
	opts.Args.Command = command

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), opts, &out, logger)
	return out.String(), err
}

func TestRun_UpDownStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chirp.db")

	out, err := migrate(t, dbPath, "status")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "pending"))

	out, err = migrate(t, dbPath, "up")
	require.NoError(t, err)
	assert.Equal(t, "applied 3 migration(s)\n", out)

	// Nothing left to apply the second time.
	out, err = migrate(t, dbPath, "up")
	require.NoError(t, err)
	assert.Equal(t, "applied 0 migration(s)\n", out)

	out, err = migrate(t, dbPath, "status")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "applied"))
	assert.Contains(t, out, "00003_create_timeline_and_bookmarks.sql")

	for _, want := range []string{"3", "2", "1"} {
		out, err = migrate(t, dbPath, "down")
		require.NoError(t, err)
		assert.Equal(t, "rolled back version "+want+"\n", out)
	}

	// Past the first migration there is nothing to undo, and that is not an error.
	out, err = migrate(t, dbPath, "down")
	require.NoError(t, err)
	assert.Equal(t, "nothing to roll back\n", out)

	out, err = migrate(t, dbPath, "status")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "pending"))
}

func TestRun_DefaultsToStatus(t *testing.T) {
	out, err := migrate(t, filepath.Join(t.TempDir(), "chirp.db"), "")
	require.NoError(t, err)
	assert.Contains(t, out, "00001_create_users.sql")
}

func TestRun_UnknownCommand(t *testing.T) {
	_, err := migrate(t, filepath.Join(t.TempDir(), "chirp.db"), "sideways")
	assert.ErrorContains(t, err, `unknown command "sideways"`)
}
