package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ZipArchiver packs output directories into a zip stream.
type ZipArchiver struct{}

func NewZipArchiver() *ZipArchiver {
	return &ZipArchiver{}
}

// WriteArchive walks every dir and writes its regular files into w. Entry
// names are relative to baseDir and use forward slashes.
func (a *ZipArchiver) WriteArchive(w io.Writer, baseDir string, dirs []string) error {
	zipWriter := zip.NewWriter(w)

	for _, dir := range dirs {
		if err := addDir(zipWriter, baseDir, dir); err != nil {
			zipWriter.Close()
			return err
		}
	}
	return zipWriter.Close()
}

func addDir(zw *zip.Writer, baseDir, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", path, err)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip error: %w", err)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("copy error: %w", err)
		}
		return nil
	})
}
