package safety

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SafeExtractArchive implements safe_extract_archive(archive, dest, limits).
// No third-party archive-decoder library appears anywhere in the retrieval
// pack, so this is built directly on the standard library's archive/zip and
// archive/tar — see DESIGN.md for the justification.
//
// Invariants: reject any entry whose normalized path is absolute, contains
// a parent-directory component, or carries a drive prefix; reject any
// non-regular-file entry (symlink, hardlink, device, fifo); enforce
// max_files, max_bytes_per_file, max_total_bytes. On any violation, dest is
// removed entirely and the call fails.
func SafeExtractArchive(archivePath, dest string, limits ArchiveLimits) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("safety: create dest: %w", err)
	}

	err := extract(archivePath, dest, limits)
	if err != nil {
		os.RemoveAll(dest)
		return err
	}
	return nil
}

func extract(archivePath, dest string, limits ArchiveLimits) error {
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(archivePath, dest, limits)
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		return extractTarGz(archivePath, dest, limits)
	case strings.HasSuffix(archivePath, ".tar"):
		return extractTar(archivePath, dest, limits)
	default:
		return fmt.Errorf("safety: unsupported archive type: %s", archivePath)
	}
}

type extractCounters struct {
	files      int
	totalBytes int64
}

func validateEntryName(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("safety: archive entry has absolute path: %s", name)
	}
	if vol := filepath.VolumeName(name); vol != "" {
		return "", fmt.Errorf("safety: archive entry has drive prefix: %s", name)
	}
	clean := filepath.Clean(name)
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("safety: archive entry escapes via parent reference: %s", name)
		}
	}
	return clean, nil
}

func (c *extractCounters) admit(size int64, limits ArchiveLimits) error {
	c.files++
	if limits.MaxFiles > 0 && c.files > limits.MaxFiles {
		return fmt.Errorf("safety: archive exceeds max_files (%d)", limits.MaxFiles)
	}
	if limits.MaxBytesPerFile > 0 && size > limits.MaxBytesPerFile {
		return fmt.Errorf("safety: archive entry exceeds max_bytes_per_file (%d)", limits.MaxBytesPerFile)
	}
	c.totalBytes += size
	if limits.MaxTotalBytes > 0 && c.totalBytes > limits.MaxTotalBytes {
		return fmt.Errorf("safety: archive exceeds max_total_bytes (%d)", limits.MaxTotalBytes)
	}
	return nil
}

func extractZip(archivePath, dest string, limits ArchiveLimits) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("safety: open zip: %w", err)
	}
	defer r.Close()

	counters := &extractCounters{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		mode := f.Mode()
		if !mode.IsRegular() {
			return fmt.Errorf("safety: archive entry is not a regular file: %s", f.Name)
		}
		name, err := validateEntryName(f.Name)
		if err != nil {
			return err
		}
		if err := counters.admit(int64(f.UncompressedSize64), limits); err != nil {
			return err
		}

		target := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

func extractTarGz(archivePath, dest string, limits ArchiveLimits) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("safety: open archive: %w", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("safety: open gzip stream: %w", err)
	}
	defer gz.Close()
	return extractTarReader(tar.NewReader(gz), dest, limits)
}

func extractTar(archivePath, dest string, limits ArchiveLimits) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("safety: open archive: %w", err)
	}
	defer f.Close()
	return extractTarReader(tar.NewReader(f), dest, limits)
}

func extractTarReader(tr *tar.Reader, dest string, limits ArchiveLimits) error {
	counters := &extractCounters{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("safety: read tar entry: %w", err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
			// fall through
		default:
			return fmt.Errorf("safety: archive entry is not a regular file: %s", hdr.Name)
		}

		name, err := validateEntryName(hdr.Name)
		if err != nil {
			return err
		}
		if err := counters.admit(hdr.Size, limits); err != nil {
			return err
		}

		target := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		_, copyErr := io.CopyN(out, tr, hdr.Size)
		out.Close()
		if copyErr != nil && copyErr != io.EOF {
			return copyErr
		}
	}
}
