package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/anamnesis/pkg/adapters/file"
	"github.com/aretw0/anamnesis/pkg/domain"
	"github.com/aretw0/anamnesis/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.SessionStore = (*file.Store)(nil)
	_ ports.RecordStore  = (*file.RecordStore)(nil)
)

func TestFileStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, file.New(t.TempDir()))
}

func TestFileRecordStore_Contract(t *testing.T) {
	ports.RunRecordStoreContract(t, file.NewRecordStore(t.TempDir()))
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	err := store.Save(ctx, domain.NewSession("../escape", time.Now()))
	assert.Error(t, err)

	_, err = store.Load(ctx, "a/b")
	assert.Error(t, err)

	for _, id := range []string{".", "..", ".tmp-s1"} {
		assert.Error(t, store.Save(ctx, domain.NewSession(id, time.Now())), id)
	}
}

func TestFileStore_ListIgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewSession("s1", time.Now())))
	require.NoError(t, store.Save(ctx, domain.NewSession("tmp-user", time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-s2-123.json"), []byte("{"), 0o600))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "tmp-user"}, ids)
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	s := domain.NewSession("s1", time.Now())
	require.NoError(t, store.Save(ctx, s))
	s.State = domain.StateEnterOnset
	s.Data[domain.FieldSymptoms] = "изжога"
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateEnterOnset, loaded.State)
	assert.Equal(t, "изжога", loaded.Data[domain.FieldSymptoms])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files are left behind")
	assert.Equal(t, "s1.json", entries[0].Name())
}

func TestFileRecordStore_EscapesUserID(t *testing.T) {
	dir := t.TempDir()
	store := file.NewRecordStore(dir)

	rec := domain.Record{ID: "r1", UserID: "tg/191586312", CreatedAt: time.Now(), Final: "итог"}
	require.NoError(t, store.Save(context.Background(), rec))

	_, err := os.Stat(filepath.Join(dir, "tg%2F191586312", "r1.json"))
	assert.NoError(t, err)

	records, err := store.ListByUser(context.Background(), "tg/191586312", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "итог", records[0].Final)
}

func TestFileRecordStore_DotUserIDsStayInside(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "records")
	store := file.NewRecordStore(base)
	ctx := context.Background()

	for i, userID := range []string{"..", ".", ".hidden"} {
		rec := domain.Record{ID: "r" + string(rune('1'+i)), UserID: userID, CreatedAt: time.Now(), Final: userID}
		require.NoError(t, store.Save(ctx, rec), userID)

		records, err := store.ListByUser(ctx, userID, 5)
		require.NoError(t, err)
		require.Len(t, records, 1, userID)
		assert.Equal(t, userID, records[0].Final)
	}

	rootEntries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, rootEntries, 1, "nothing lands beside the records directory")

	baseEntries, err := os.ReadDir(base)
	require.NoError(t, err)
	var names []string
	for _, e := range baseEntries {
		assert.True(t, e.IsDir(), "records only live in per-user directories")
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"%2E.", "%2E", "%2Ehidden"}, names)

	_, err = store.ListByUser(ctx, "", 5)
	assert.Error(t, err)
	assert.Error(t, store.Save(ctx, domain.Record{ID: "r9", CreatedAt: time.Now()}))
}
