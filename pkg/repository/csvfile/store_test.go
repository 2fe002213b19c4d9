package csvfile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/repository/csvfile"
)

func TestStoreMissingFile(t *testing.T) {
	ctx := context.Background()
	store := csvfile.New(filepath.Join(t.TempDir(), csvfile.DefaultFileName))

	_, exists, err := store.ModTime(ctx)
	gt.NoError(t, err).Required()
	gt.Bool(t, exists).False()

	entries, err := store.LoadEntries(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(0)

	annotations, err := store.LoadAnnotations(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, annotations).NotNil()
	gt.Number(t, len(annotations)).Equal(0)
}

func TestStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, csvfile.DefaultFileName)
	store := csvfile.New(path)

	entries := []model.RosterEntry{
		{ID: "U1", SlackName: "Jane", Email: "jane@example.com", GlatsName: "Jane D."},
		{ID: "U2", SlackName: "Bob"},
	}

	before := time.Now().Add(-time.Second)
	gt.NoError(t, store.Save(ctx, entries)).Required()

	modTime, exists, err := store.ModTime(ctx)
	gt.NoError(t, err).Required()
	gt.Bool(t, exists).True()
	gt.Bool(t, modTime.After(before)).True()

	loaded, err := store.LoadEntries(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, loaded).Equal(entries)

	annotations, err := store.LoadAnnotations(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, annotations).Equal(map[model.SlackUserID]string{"U1": "Jane D.", "U2": ""})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		files, err := os.ReadDir(dir)
		gt.NoError(t, err).Required()
		gt.Array(t, files).Length(1)
	})

	t.Run("overwrites whole file", func(t *testing.T) {
		gt.NoError(t, store.Save(ctx, entries[:1])).Required()
		loaded, err := store.LoadEntries(ctx)
		gt.NoError(t, err).Required()
		gt.Array(t, loaded).Length(1)
	})
}

func TestStoreSaveToMissingDirectory(t *testing.T) {
	store := csvfile.New(filepath.Join(t.TempDir(), "missing", csvfile.DefaultFileName))
	err := store.Save(context.Background(), []model.RosterEntry{{ID: "U1"}})
	gt.Value(t, err).NotNil()
}

func TestStoreReadsHandEditedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), csvfile.DefaultFileName)
	raw := "id,slack_name,email,glats_name\r\nU1,Jane,,  Jane D. \r\n"
	gt.NoError(t, os.WriteFile(path, []byte(raw), 0o600)).Required()

	store := csvfile.New(path)
	entries, err := store.LoadEntries(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, entries).Length(1).Required()
	gt.Value(t, entries[0].GlatsName).Equal("  Jane D. ")

	annotations, err := store.LoadAnnotations(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, annotations["U1"]).Equal("Jane D.")
}
