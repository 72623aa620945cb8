package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/step-archiver/internal/fetcher/colly"
)

type zipEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)
		if e.body != "" {
			_, err = f.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type stubGetter struct {
	data []byte
	err  error
	urls []string
}

func (g *stubGetter) Get(_ context.Context, url string) ([]byte, error) {
	g.urls = append(g.urls, url)
	return g.data, g.err
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test paths live under t.TempDir
	require.NoError(t, err)
	return string(data)
}

func TestMaterializeRenamesEntriesPerDirectory(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "files", "Home", "Kits")
	getter := &stubGetter{data: buildZip(t,
		zipEntry{name: "a/x.step", body: "first"},
		zipEntry{name: "b/x.step", body: "second"},
	)}

	res, err := New(getter, zap.NewNop()).Materialize(context.Background(), "https://example.com/w.zip", dest, "Widget.step")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dest, "a", "Widget.step"),
		filepath.Join(dest, "b", "Widget.step"),
	}, res.Files)
	assert.Equal(t, 2, res.Entries)
	assert.Zero(t, res.Overwritten)
	assert.Equal(t, int64(len(getter.data)), res.Bytes)
	assert.Len(t, res.SHA256, 64)
	assert.Equal(t, "first", readFile(t, filepath.Join(dest, "a", "Widget.step")))
	assert.Equal(t, "second", readFile(t, filepath.Join(dest, "b", "Widget.step")))
	assert.Equal(t, []string{"https://example.com/w.zip"}, getter.urls)
}

func TestMaterializeRootEntriesLandInDestination(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	getter := &stubGetter{data: buildZip(t, zipEntry{name: "part.STEP", body: "solid"})}

	res, err := New(getter, nil).Materialize(context.Background(), "u", dest, "Bracket.step")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "Bracket.step")}, res.Files)
	assert.Equal(t, "solid", readFile(t, filepath.Join(dest, "Bracket.step")))
}

func TestMaterializeCollisionLastEntryWins(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	getter := &stubGetter{data: buildZip(t,
		zipEntry{name: "cad/one.step", body: "one"},
		zipEntry{name: "cad/two.step", body: "two"},
	)}

	res, err := New(getter, nil).Materialize(context.Background(), "u", dest, "Widget.step")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Entries)
	assert.Equal(t, 1, res.Overwritten)
	assert.Len(t, res.Files, 1)
	assert.Equal(t, "two", readFile(t, filepath.Join(dest, "cad", "Widget.step")))
}

func TestMaterializeDirectoryEntriesOnlyCreateDirectories(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	getter := &stubGetter{data: buildZip(t,
		zipEntry{name: "empty/"},
		zipEntry{name: "full/x.step", body: "x"},
	)}

	res, err := New(getter, nil).Materialize(context.Background(), "u", dest, "Widget.step")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)

	info, err := os.Stat(filepath.Join(dest, "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	_, err = os.Stat(filepath.Join(dest, "empty", "Widget.step"))
	assert.True(t, os.IsNotExist(err))
}

func TestMaterializeRejectsTraversal(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "inner")
	getter := &stubGetter{data: buildZip(t, zipEntry{name: "../../evil/x.step", body: "x"})}

	_, err := New(getter, nil).Materialize(context.Background(), "u", dest, "Widget.step")
	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, StageDecompress, retrievalErr.Stage)
	_, statErr := os.Stat(filepath.Join(dest, "..", "..", "evil"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestMaterializeFetchFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	_, err := New(&stubGetter{err: boom}, nil).Materialize(context.Background(), "https://example.com/a.zip", t.TempDir(), "W.step")

	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, StageFetch, retrievalErr.Stage)
	assert.Equal(t, "https://example.com/a.zip", retrievalErr.URL)
	assert.ErrorIs(t, err, boom)
}

func TestMaterializeCorruptArchive(t *testing.T) {
	t.Parallel()

	_, err := New(&stubGetter{data: []byte("<html>not a zip</html>")}, nil).Materialize(context.Background(), "u", t.TempDir(), "W.step")

	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, StageDecompress, retrievalErr.Stage)
}

func TestMaterializeOverHTTP(t *testing.T) {
	t.Parallel()

	payload := buildZip(t, zipEntry{name: "step/gear.step", body: "ISO-10303-21;"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/content/gear.zip" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	m := New(collyfetcher.New(collyfetcher.Config{}), zap.NewNop())
	dest := t.TempDir()

	res, err := m.Materialize(context.Background(), srv.URL+"/content/gear.zip", dest, "Gear.step")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "step", "Gear.step")}, res.Files)
	assert.Equal(t, "ISO-10303-21;", readFile(t, filepath.Join(dest, "step", "Gear.step")))

	_, err = m.Materialize(context.Background(), srv.URL+"/missing.zip", dest, "Gear.step")
	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, StageFetch, retrievalErr.Stage)
	assert.True(t, collyfetcher.IsStatus(err, http.StatusNotFound))
}

func TestMaterializeOversizedArchiveFailsAtFetch(t *testing.T) {
	t.Parallel()

	payload := buildZip(t, zipEntry{name: "big.step", body: string(bytes.Repeat([]byte("x"), 4096))})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	m := New(collyfetcher.New(collyfetcher.Config{MaxBodyBytes: len(payload) - 1}), zap.NewNop())
	_, err := m.Materialize(context.Background(), srv.URL+"/big.zip", t.TempDir(), "Big.step")
	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, StageFetch, retrievalErr.Stage)
	assert.ErrorIs(t, err, collyfetcher.ErrBodyTooLarge)
}

func TestEntryDir(t *testing.T) {
	t.Parallel()

	tests := []struct{ name, want string }{
		{"x.step", ""},
		{"a/x.step", "a"},
		{"a/b/x.step", "a/b"},
		{"a/", "a"},
		{"/abs/x.step", "abs"},
		{`win\dir\x.step`, "win/dir"},
		{"./a/./x.step", "a"},
	}
	for _, tc := range tests {
		got, err := entryDir(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}

	_, err := entryDir("a/../../x.step")
	assert.Error(t, err)
}
