package locodb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/railcore/railcore/pkgs/configstore"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *configstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locos.ini")
	store, err := configstore.Open(path, nil)
	require.NoError(t, err)
	return store
}

func TestGetCreatesRecordOnFirstReference(t *testing.T) {
	db, err := Open(openTestStore(t))
	require.NoError(t, err)

	rec, err := db.Get(7)
	require.NoError(t, err)
	require.Equal(t, uint16(7), rec.Address)
	require.Equal(t, FormatDCC28, rec.Format)
}

func TestAddressZeroIsTemplateAndNeverPersisted(t *testing.T) {
	db, err := Open(openTestStore(t))
	require.NoError(t, err)

	tmpl, err := db.Get(DefaultAddress)
	require.NoError(t, err)
	tmpl.SetFormat(FormatMM2_14)
	require.NoError(t, db.Put(tmpl))

	rec, err := db.Get(42)
	require.NoError(t, err)
	require.Equal(t, FormatMM2_14, rec.Format)
	require.LessOrEqual(t, rec.MaxFunc, uint8(4))
}

func TestAddressOutOfRangeRejected(t *testing.T) {
	db, err := Open(openTestStore(t))
	require.NoError(t, err)

	_, err = db.Get(MaxAddress + 1)
	require.Error(t, err)
}

func TestPersistedRecordReloadsIdentically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locos.ini")
	store, err := configstore.Open(path, nil)
	require.NoError(t, err)

	db, err := Open(store)
	require.NoError(t, err)

	rec, err := db.Get(99)
	require.NoError(t, err)
	rec.Name = "Steamer"
	rec.FuncTimings[0] = FuncTiming{Icon: "light", Momentary: false}
	require.NoError(t, db.Put(rec))
	require.NoError(t, store.Flush())

	_, err = os.Stat(path)
	require.NoError(t, err)

	store2, err := configstore.Open(path, nil)
	require.NoError(t, err)
	db2, err := Open(store2)
	require.NoError(t, err)

	rec2, err := db2.Get(99)
	require.NoError(t, err)
	require.Equal(t, "Steamer", rec2.Name)
	require.Equal(t, "light", rec2.FuncTimings[0].Icon)
}

func TestPurgeRemovesRecordFromMemory(t *testing.T) {
	db, err := Open(openTestStore(t))
	require.NoError(t, err)

	_, err = db.Get(5)
	require.NoError(t, err)
	db.Purge(5)

	rec, err := db.Get(5)
	require.NoError(t, err)
	require.Equal(t, FormatDCC28, rec.Format)
}
