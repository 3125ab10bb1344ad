package storage

import (
	"bytes"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-quicktest/qt"
)

func randBytes(n int) []byte {
	r := rand.New(rand.NewPCG(uint64(n), 0))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.UintN(256))
	}
	return b
}

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name))
	qt.Assert(t, qt.IsNil(os.MkdirAll(filepath.Dir(p), 0o755)))
	qt.Assert(t, qt.IsNil(os.WriteFile(p, data, 0o644)))
}

func exists(root, name string) bool {
	_, err := os.Lstat(filepath.Join(root, filepath.FromSlash(name)))
	return err == nil
}

func TestRemoveBothVariants(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "t/a", []byte("a"))
	writeFile(t, root, "t/a.part", []byte("part"))
	writeFile(t, root, "t/b", []byte("b"))
	res, err := Dir{root}.Remove("t/a")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.DeepEquals(res.Removed, []string{"t/a", "t/a.part"}))
	qt.Check(t, qt.Equals(res.Bytes, int64(5)))
	qt.Check(t, qt.IsFalse(exists(root, "t/a")))
	qt.Check(t, qt.IsFalse(exists(root, "t/a.part")))
	// There's still a sibling.
	qt.Check(t, qt.IsTrue(exists(root, "t/b")))
}

func TestRemovePartOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "t/a.part", []byte("part"))
	writeFile(t, root, "t/b", nil)
	res, err := Dir{root}.Remove("t/a")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.DeepEquals(res.Removed, []string{"t/a.part"}))
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "t/b", nil)
	res, err := Dir{root}.Remove("t/a")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.HasLen(res.Removed, 0))
	qt.Check(t, qt.IsTrue(exists(root, "t")))
}

func TestRemovePrunesEmptyParents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "t/keep", nil)
	writeFile(t, root, "t/x/y/z/a", []byte("a"))
	_, err := Dir{root}.Remove("t/x/y/z/a")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsFalse(exists(root, "t/x")))
	qt.Check(t, qt.IsTrue(exists(root, "t/keep")))
}

func TestRemoveNeverRemovesRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "downloads")
	writeFile(t, root, "t/a", []byte("a"))
	_, err := Dir{root}.Remove("t/a")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsFalse(exists(root, "t")))
	fi, err := os.Stat(root)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsTrue(fi.IsDir()))
}

func TestUnsafePaths(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"../a", "t/../../a", "/etc/passwd", ""} {
		_, err := Dir{root}.Remove(name)
		qt.Check(t, qt.ErrorIs(err, ErrUnsafePath), qt.Commentf("%q", name))
		_, err = Dir{root}.Trim(name, 1, 0)
		qt.Check(t, qt.ErrorIs(err, ErrUnsafePath), qt.Commentf("%q", name))
	}
}

func readFile(t *testing.T, root, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	qt.Assert(t, qt.IsNil(err))
	return b
}

func TestTrimKeepFirst(t *testing.T) {
	root := t.TempDir()
	data := randBytes(100)
	writeFile(t, root, "t/a", data)
	res, err := Dir{root}.Trim("t/a", 10, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.Equals(res, TrimResult{Source: "t/a", Length: 100, Dropped: 90}))
	qt.Check(t, qt.IsFalse(exists(root, "t/a")))
	expected := make([]byte, 100)
	copy(expected, data[:10])
	qt.Check(t, qt.DeepEquals(readFile(t, root, "t/a.part"), expected))
	qt.Check(t, qt.IsFalse(exists(root, "t/a"+tempSuffix)))
}

func TestTrimKeepLast(t *testing.T) {
	root := t.TempDir()
	data := randBytes(100)
	writeFile(t, root, "a", data)
	_, err := Dir{root}.Trim("a", 0, 7)
	qt.Assert(t, qt.IsNil(err))
	expected := make([]byte, 100)
	copy(expected[93:], data[93:])
	qt.Check(t, qt.DeepEquals(readFile(t, root, "a.part"), expected))
}

func TestTrimBothEndsFromPart(t *testing.T) {
	root := t.TempDir()
	data := randBytes(64)
	writeFile(t, root, "a.part", data)
	res, err := Dir{root}.Trim("a", 12, 12)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.Equals(res.Source, "a.part"))
	expected := make([]byte, 64)
	copy(expected, data[:12])
	copy(expected[52:], data[52:])
	qt.Check(t, qt.DeepEquals(readFile(t, root, "a.part"), expected))
}

func TestTrimPrefersCompleteName(t *testing.T) {
	root := t.TempDir()
	data := randBytes(32)
	writeFile(t, root, "a", data)
	writeFile(t, root, "a.part", bytes.Repeat([]byte{1}, 32))
	res, err := Dir{root}.Trim("a", 4, 0)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.Equals(res.Source, "a"))
	qt.Check(t, qt.DeepEquals(readFile(t, root, "a.part")[:4], data[:4]))
	qt.Check(t, qt.IsFalse(exists(root, "a")))
}

func TestTrimOverwritesStaleTemp(t *testing.T) {
	root := t.TempDir()
	data := randBytes(32)
	writeFile(t, root, "a", data)
	writeFile(t, root, "a"+tempSuffix, bytes.Repeat([]byte{0xff}, 64))
	_, err := Dir{root}.Trim("a", 4, 0)
	qt.Assert(t, qt.IsNil(err))
	b := readFile(t, root, "a.part")
	qt.Check(t, qt.HasLen(b, 32))
	qt.Check(t, qt.DeepEquals(b[4:], make([]byte, 28)))
}

func TestTrimShortSourceLeavesNoTemp(t *testing.T) {
	root := t.TempDir()
	data := randBytes(10)
	writeFile(t, root, "a", data)
	_, err := Dir{root}.Trim("a", 8, 8)
	qt.Check(t, qt.ErrorIs(err, ErrUnexpectedEOF))
	qt.Check(t, qt.DeepEquals(readFile(t, root, "a"), data))
	qt.Check(t, qt.IsFalse(exists(root, "a.part")))
	qt.Check(t, qt.IsFalse(exists(root, "a"+tempSuffix)))
}

func TestTrimMissing(t *testing.T) {
	_, err := Dir{t.TempDir()}.Trim("a", 1, 0)
	qt.Check(t, qt.ErrorIs(err, fs.ErrNotExist))
}

func TestStat(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.part", []byte("x"))
	v, err := Dir{root}.Stat("a")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsNil(v.Complete))
	qt.Check(t, qt.IsNotNil(v.Part))
	qt.Check(t, qt.IsTrue(v.Any()))
	v, err = Dir{root}.Stat("b")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsFalse(v.Any()))
}
