package database

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"cleanshot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cleanshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summaryAt(id, mode string, ts time.Time) types.RunSummary {
	return types.RunSummary{
		ID:        id,
		Timestamp: ts,
		Folder:    "/photos",
		Mode:      mode,
		Settings:  json.RawMessage(`{"blur_threshold":100}`),
		Results: types.RunResults{
			Counts: types.Counts{Total: 3, Good: 1, Duplicate: 2},
			Items:  []types.ProcessingResult{{Path: "/photos/a.jpg", Category: types.CategoryGood}},
		},
	}
}

func TestSaveAndLoadLastSession(t *testing.T) {
	s := openStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSession(summaryAt("one", types.ModeOrganize, base)))
	require.NoError(t, s.SaveSession(summaryAt("two", types.ModeSearch, base.Add(time.Minute))))
	require.NoError(t, s.SaveSession(summaryAt("three", types.ModeOrganize, base.Add(time.Second))))

	last, err := s.LoadLastSession("")
	require.NoError(t, err)
	assert.Equal(t, "two", last.ID)

	last, err = s.LoadLastSession(types.ModeOrganize)
	require.NoError(t, err)
	assert.Equal(t, "three", last.ID)
	assert.True(t, last.Timestamp.Equal(base.Add(time.Second)))
	assert.Equal(t, "/photos", last.Folder)
	assert.JSONEq(t, `{"blur_threshold":100}`, string(last.Settings))
	assert.Equal(t, 2, last.Results.Counts.Duplicate)
	require.Len(t, last.Results.Items, 1)
	assert.Equal(t, types.CategoryGood, last.Results.Items[0].Category)
}

func TestLoadLastSessionEmpty(t *testing.T) {
	s := openStore(t)
	_, err := s.LoadLastSession("")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = s.GetSession("missing")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSaveSessionReplaces(t *testing.T) {
	s := openStore(t)
	ts := time.Now()
	sum := summaryAt("same", types.ModeOrganize, ts)
	require.NoError(t, s.SaveSession(sum))
	sum.Results.Stopped = true
	require.NoError(t, s.SaveSession(sum))

	got, err := s.GetSession("same")
	require.NoError(t, err)
	assert.True(t, got.Results.Stopped)

	all, err := s.ListSessions(0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveSessionAssignsID(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.SaveSession(types.RunSummary{Folder: "/x", Mode: types.ModeOrganize}))
	last, err := s.LoadLastSession("")
	require.NoError(t, err)
	assert.Len(t, last.ID, 36)
	assert.Equal(t, "{}", string(last.Settings))
}

func TestListSessionsAndStats(t *testing.T) {
	s := openStore(t)
	base := time.Now()
	for i, mode := range []string{types.ModeOrganize, types.ModeOrganize, types.ModeSearch} {
		require.NoError(t, s.SaveSession(summaryAt(string(rune('a'+i)), mode, base.Add(time.Duration(i)*time.Second))))
	}

	list, err := s.ListSessions(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	stats, err := s.GetSessionStats()
	require.NoError(t, err)
	assert.Equal(t, &SessionStats{TotalSessions: 3, OrganizeSessions: 2, SearchSessions: 1}, stats)
}

func TestInitDatabaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleanshot.db")
	db, err := InitDatabase(path)
	require.NoError(t, err)
	db.Close()

	db, err = InitDatabase(path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('sessions') WHERE name='mode'").Scan(&n))
	assert.Equal(t, 1, n)
}
