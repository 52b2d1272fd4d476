package turnoutdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/railcore/railcore/pkgs/configstore"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *configstore.Store {
	t.Helper()
	store, err := configstore.Open(filepath.Join(t.TempDir(), "turnouts.ini"), nil)
	require.NoError(t, err)
	return store
}

func TestGetCreatesDefaultRecord(t *testing.T) {
	db, err := Open(openTestStore(t))
	require.NoError(t, err)

	rec, err := db.Get(10)
	require.NoError(t, err)
	require.Equal(t, FormatDCC, rec.Format)
	require.Equal(t, Straight, rec.LastDirection)
}

func TestAddressOutOfRangeRejected(t *testing.T) {
	db, err := Open(openTestStore(t))
	require.NoError(t, err)
	_, err = db.Get(MaxAddress + 1)
	require.Error(t, err)
	_, err = db.Get(0)
	require.Error(t, err)
}

func TestSwitchArmsDeadlineAndPersists(t *testing.T) {
	store := openTestStore(t)
	db, err := Open(store)
	require.NoError(t, err)
	rec, err := db.Get(3)
	require.NoError(t, err)

	now := time.Now()
	db.Switch(rec, Thrown, now)
	require.True(t, rec.On)
	require.Equal(t, Thrown, rec.LastDirection)
	require.True(t, rec.SwitchOffAt.After(now))
	var persistedDir string
	store.View(func(doc *configstore.Document) {
		persistedDir, _ = doc.Section("turnout:3").Get("dir")
	})
	require.Equal(t, "thrown", persistedDir)

	db.SwitchOff(rec)
	require.False(t, rec.On)
}

func TestClampSwitchTimeBounds(t *testing.T) {
	require.EqualValues(t, MinSwitchMs, ClampSwitchTime(0))
	require.EqualValues(t, MaxSwitchMs, ClampSwitchTime(60000))
	require.EqualValues(t, 500, ClampSwitchTime(500))
}
