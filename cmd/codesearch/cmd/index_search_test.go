package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeSampleProject lays out a minimal Go project under dir: one source
// file with a distinctive, rare identifier so BM25 can find it reliably
// without a real embedding model.
func writeSampleProject(t *testing.T, dir string) {
	t.Helper()
	src := `package sample

// RetryWithExponentialBackoff retries fn until it succeeds or attempts run out.
func RetryWithExponentialBackoff(fn func() error, attempts int) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "retry.go"), []byte(src), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module sample\n\ngo 1.23\n"), 0o644))
}

func TestIndexThenSearch_OfflineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeSampleProject(t, dir)

	indexCmd := NewRootCmd()
	indexBuf := new(bytes.Buffer)
	indexCmd.SetOut(indexBuf)
	indexCmd.SetArgs([]string{"index", dir, "--offline"})
	require.NoError(t, indexCmd.Execute())

	oi, err := openIndex(context.Background(), dir, openIndexOptions{offline: true})
	require.NoError(t, err)
	defer oi.Close()

	stats := oi.engine.Stats()
	require.NotNil(t, stats.BM25Stats)
	require.Greater(t, stats.BM25Stats.DocumentCount, 0)
}

func TestIndex_AlreadyUpToDate_SecondRunNoOp(t *testing.T) {
	dir := t.TempDir()
	writeSampleProject(t, dir)

	first := NewRootCmd()
	first.SetOut(new(bytes.Buffer))
	first.SetArgs([]string{"index", dir, "--offline"})
	require.NoError(t, first.Execute())

	second := NewRootCmd()
	buf := new(bytes.Buffer)
	second.SetOut(buf)
	second.SetArgs([]string{"index", dir, "--offline"})
	require.NoError(t, second.Execute())

	require.Contains(t, buf.String(), "up to date")
}
