package atomicfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteBytes_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.bin")

	require.NoError(t, WriteBytes(path, []byte("hello")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	_, err = os.Stat(path + tmpSuffix)
	require.True(t, os.IsNotExist(err), "temp file should not survive a successful write")
}

func TestWriteBytes_LeavesOriginalUntouchedOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.bin")
	require.NoError(t, WriteBytes(path, []byte("original")))

	// Make the temp target unwritable by occupying it as a directory,
	// forcing OpenFile to fail during the second write.
	tmp := path + tmpSuffix
	require.NoError(t, os.Mkdir(tmp, 0o755))

	err := WriteBytes(path, []byte("new"))
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "original", string(got))
}

func TestWriteStream_CountsBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.ts")

	n, err := WriteStream(path, strings.NewReader("0123456789"))
	require.NoError(t, err)
	require.EqualValues(t, 10, n)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 10)
}
