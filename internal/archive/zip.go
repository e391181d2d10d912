// Package archive turns an uploaded zip container into a set of on-disk
// image files for the worker pool.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuflow/invoice-extractor/constants"
)

// Unpack extracts every supported image entry from the archive into destDir
// and returns the extracted paths. Non-image entries are skipped. An archive
// with no image entries yields an empty slice, not an error.
func Unpack(archiveBytes []byte, destDir string, log *slog.Logger) ([]string, error) {
	if log == nil {
		log = slog.Default()
	}

	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	var paths []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !constants.IsImagePath(f.Name) {
			continue
		}
		// flatten entry paths; reject anything trying to escape destDir
		name := filepath.Base(f.Name)
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			log.Warn("archive.unpack.skip_entry", "entry", f.Name)
			continue
		}
		dst := filepath.Join(destDir, fmt.Sprintf("%03d_%s", len(paths), name))

		if err := extractEntry(f, dst); err != nil {
			return nil, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		paths = append(paths, dst)
	}

	log.Info("archive.unpack.ok", "entries", len(zr.File), "images", len(paths), "dest", destDir)
	return paths, nil
}

func extractEntry(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
