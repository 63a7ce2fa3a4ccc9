package extract

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/clawbridge/internal/safety"
)

// Archive limits mirror spec.md §5's single-archive resource bound: at most
// 100 files, at most 100 KB read back per text file, at most 1 MB of total
// content returned to the agent.
var defaultArchiveLimits = safety.ArchiveLimits{
	MaxFiles:        100,
	MaxBytesPerFile: 100 * 1024,
	MaxTotalBytes:   1024 * 1024,
}

// ExtractArchive safely unpacks archivePath under dest (via the Safety
// Kernel's safe_extract_archive) and reads back the text content of every
// extracted file, concatenated and capped at MaxTotalBytes, for folding
// into the agent's prompt.
func ExtractArchive(archivePath, dest string) (string, error) {
	if err := safety.SafeExtractArchive(archivePath, dest, defaultArchiveLimits); err != nil {
		return "", fmt.Errorf("extract: unpack archive: %w", err)
	}

	var out []byte
	err := filepath.WalkDir(dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if int64(len(out)) >= defaultArchiveLimits.MaxTotalBytes {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		remaining := defaultArchiveLimits.MaxTotalBytes - int64(len(out))
		if int64(len(data)) > remaining {
			data = data[:remaining]
		}
		out = append(out, data...)
		out = append(out, '\n')
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("extract: read archive contents: %w", err)
	}
	return string(out), nil
}
