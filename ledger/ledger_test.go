package ledger_test

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"cleanshot/ledger"
	"cleanshot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			files = append(files, rel)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func TestUndoLastRestoresMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	writeFile(t, src, "pixels")

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ops.json"))
	require.NoError(t, err)

	op, err := ledger.Move(src, filepath.Join(dir, types.GoodFolder))
	require.NoError(t, err)
	require.NoError(t, l.Record(op))
	assert.NoFileExists(t, src)

	undone, err := l.UndoLast()
	require.NoError(t, err)
	assert.Equal(t, op, undone)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.NoFileExists(t, op.Destination)
	assert.Zero(t, l.Len())
}

func TestUndoLastRemovesCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "face.jpg")
	writeFile(t, src, "face")

	l, err := ledger.Open("")
	require.NoError(t, err)

	op, err := ledger.Copy(src, filepath.Join(dir, types.FaceFolder))
	require.NoError(t, err)
	require.NoError(t, l.Record(op))
	assert.FileExists(t, op.Destination)

	_, err = l.UndoLast()
	require.NoError(t, err)
	assert.NoFileExists(t, op.Destination)
	assert.FileExists(t, src)
}

func TestUndoRoundTrip(t *testing.T) {
	dir := t.TempDir()
	names := []string{"1.jpg", "2.jpg", "3.png", "4.jpg"}
	for _, n := range names {
		writeFile(t, filepath.Join(dir, n), n)
	}
	before := listTree(t, dir)

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ops.json"))
	require.NoError(t, err)

	folders := []string{types.GoodFolder, types.BlurryFolder, types.DuplicateFolder, types.GoodFolder}
	for i, n := range names {
		src := filepath.Join(dir, n)
		if i == 0 {
			cp, err := ledger.Copy(src, filepath.Join(dir, types.FaceFolder))
			require.NoError(t, err)
			require.NoError(t, l.Record(cp))
		}
		op, err := ledger.Move(src, filepath.Join(dir, folders[i]))
		require.NoError(t, err)
		require.NoError(t, l.Record(op))
	}
	require.Equal(t, 5, l.Len())

	for l.Len() > 0 {
		_, err := l.UndoLast()
		require.NoError(t, err)
	}
	assert.Equal(t, before, listTree(t, dir))
}

func TestUndoAlreadyMissingDoesNotBlockEarlierEntries(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	writeFile(t, a, "a")
	writeFile(t, b, "b")

	l, err := ledger.Open(filepath.Join(dir, "ops.json"))
	require.NoError(t, err)

	opA, err := ledger.Move(a, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.NoError(t, l.Record(opA))
	opB, err := ledger.Move(b, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.NoError(t, l.Record(opB))

	require.NoError(t, os.Remove(opB.Destination))

	_, err = l.UndoLast()
	assert.True(t, errors.Is(err, ledger.ErrAlreadyMissing))
	assert.Equal(t, 1, l.Len())

	_, err = l.UndoLast()
	require.NoError(t, err)
	assert.FileExists(t, a)
}

func TestUndoAllContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	var ops []types.Operation
	l, err := ledger.Open(filepath.Join(dir, "ops.json"))
	require.NoError(t, err)

	for _, n := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		p := filepath.Join(dir, n)
		writeFile(t, p, n)
		op, err := ledger.Move(p, filepath.Join(dir, "out"))
		require.NoError(t, err)
		require.NoError(t, l.Record(op))
		ops = append(ops, op)
	}

	// b's destination disappears
	require.NoError(t, os.Remove(ops[1].Destination))

	undone, errs := l.UndoAll()
	assert.Equal(t, 2, undone)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ledger.ErrAlreadyMissing))
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))
	assert.FileExists(t, filepath.Join(dir, "c.jpg"))
	assert.Zero(t, l.Len())
}

func TestUndoKeepsEntryWhenSourceOccupied(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	writeFile(t, src, "original")

	l, err := ledger.Open("")
	require.NoError(t, err)
	op, err := ledger.Move(src, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.NoError(t, l.Record(op))

	writeFile(t, src, "newcomer")

	_, err = l.UndoLast()
	assert.True(t, errors.Is(err, ledger.ErrSourceOccupied))
	assert.Equal(t, 1, l.Len())
}

func TestDropLastUnblocksOlderEntries(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.jpg")
	second := filepath.Join(dir, "b.jpg")
	writeFile(t, first, "a")
	writeFile(t, second, "b")

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ops.json"))
	require.NoError(t, err)
	for _, src := range []string{first, second} {
		op, err := ledger.Move(src, filepath.Join(dir, "out"))
		require.NoError(t, err)
		require.NoError(t, l.Record(op))
	}
	writeFile(t, second, "newcomer")

	blocked, err := l.UndoLast()
	var uerr *ledger.UndoError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, second, uerr.Op.Source)
	assert.Equal(t, second, blocked.Source)
	_, err = l.UndoLast()
	assert.ErrorIs(t, err, ledger.ErrSourceOccupied)

	dropped, err := l.DropLast()
	require.NoError(t, err)
	assert.Equal(t, blocked, dropped)
	assert.FileExists(t, filepath.Join(dir, "out", "b.jpg"))

	_, err = l.UndoLast()
	require.NoError(t, err)
	assert.FileExists(t, first)
	assert.Equal(t, 0, l.Len())

	_, err = l.DropLast()
	assert.ErrorIs(t, err, ledger.ErrEmpty)
}

func TestUndoEmpty(t *testing.T) {
	l, err := ledger.Open("")
	require.NoError(t, err)
	_, err = l.UndoLast()
	assert.ErrorIs(t, err, ledger.ErrEmpty)
}

func TestLedgerPersistsEachRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ops.json")
	src := filepath.Join(dir, "a.jpg")
	writeFile(t, src, "a")

	l, err := ledger.Open(path)
	require.NoError(t, err)
	op, err := ledger.Move(src, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.NoError(t, l.Record(op))

	reopened, err := ledger.Open(path)
	require.NoError(t, err)
	ops := reopened.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, op.Kind, ops[0].Kind)
	assert.Equal(t, op.Source, ops[0].Source)
	assert.Equal(t, op.Destination, ops[0].Destination)
	assert.True(t, op.Timestamp.Equal(ops[0].Timestamp))

	require.NoError(t, reopened.Clear())
	again, err := ledger.Open(path)
	require.NoError(t, err)
	assert.Zero(t, again.Len())
}

func TestMoveAvoidsNameCollisions(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0755))
	writeFile(t, filepath.Join(out, "a.jpg"), "existing")

	src := filepath.Join(dir, "a.jpg")
	writeFile(t, src, "incoming")

	op, err := ledger.Move(src, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "a_1.jpg"), op.Destination)

	data, err := os.ReadFile(filepath.Join(out, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}

func TestMoveMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := ledger.Move(filepath.Join(dir, "ghost.jpg"), filepath.Join(dir, "out"))
	var rerr *ledger.RelocationError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, types.OpMove, rerr.Kind)
}
