package disk_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gojodb/bufferpool/internal/disk"
	"github.com/gojodb/bufferpool/internal/page"
)

func TestFileGrowThenReadWrite(t *testing.T) {
	f, err := disk.OpenFile(filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Grow(page.ID(3)))

	zeroed := make([]byte, page.Size)
	require.NoError(t, f.ReadPage(2, zeroed))
	for _, b := range zeroed {
		require.Equal(t, byte(0), b)
	}

	payload := make([]byte, page.Size)
	copy(payload, []byte("grown page contents"))
	require.NoError(t, f.WritePage(2, payload))

	roundtrip := make([]byte, page.Size)
	require.NoError(t, f.ReadPage(2, roundtrip))
	require.Equal(t, payload, roundtrip)
}

func TestFileRejectsWrongSizedBuffer(t *testing.T) {
	f, err := disk.OpenFile(filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, err)
	defer f.Close()

	require.Error(t, f.ReadPage(0, make([]byte, 10)))
	require.Error(t, f.WritePage(0, make([]byte, page.Size+1)))
}
