package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestZipArchiver_OnlyListedDirs(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "ocr_results_A", "complete.md"), "# A")
	writeFile(t, filepath.Join(base, "ocr_results_A", "images", "img-0.png"), "png")
	writeFile(t, filepath.Join(base, "ocr_results_B", "complete.md"), "# B")
	writeFile(t, filepath.Join(base, "ocr_results_C", "complete.md"), "# C")

	var buf bytes.Buffer
	err := NewZipArchiver().WriteArchive(&buf, base, []string{
		filepath.Join(base, "ocr_results_A"),
		filepath.Join(base, "ocr_results_C"),
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	contents := map[string]string{}
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		rc.Close()
		contents[f.Name] = string(data)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"ocr_results_A/complete.md",
		"ocr_results_A/images/img-0.png",
		"ocr_results_C/complete.md",
	}, names)
	assert.Equal(t, "# C", contents["ocr_results_C/complete.md"])
}

func TestZipArchiver_MissingDir(t *testing.T) {
	base := t.TempDir()
	var buf bytes.Buffer
	err := NewZipArchiver().WriteArchive(&buf, base, []string{filepath.Join(base, "gone")})
	assert.Error(t, err)
}
