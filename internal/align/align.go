// Package align copies raw sensor captures into a scene, renaming each file
// from its nanosecond capture timestamp to the frame identifier shared by
// all sensors.
package align

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Zhao-Qihao/xbzl-data/internal/monitoring"
	"github.com/Zhao-Qihao/xbzl-data/internal/security"
)

// DefaultTruncateDigits drops the sub-second part of a nanosecond stamp.
const DefaultTruncateDigits = 9

// splitExt splits name like os.path.splitext: leading dots belong to the
// base, so ".hidden" has no extension.
func splitExt(name string) (base, ext string) {
	trimmed := strings.TrimLeft(name, ".")
	i := strings.LastIndex(trimmed, ".")
	if i < 0 {
		return name, ""
	}
	i += len(name) - len(trimmed)
	return name[:i], name[i:]
}

// TruncateTimestamp removes the last digits characters of the file base name
// when the base is longer than that, keeping the extension:
// "1758683129000352232.png" becomes "1758683129.png".
func TruncateTimestamp(name string, digits int) string {
	base, ext := splitExt(name)
	if len(base) > digits {
		base = base[:len(base)-digits]
	}
	return base + ext
}

// Copy records one file copied by AlignFolder.
type Copy struct {
	From, To string
}

// AlignFolder copies every regular file of src into dst under its truncated
// name, preserving permissions and modification time. Files are processed
// in name order, so when two captures truncate to the same name the later
// one wins.
func AlignFolder(src, dst string, digits int) ([]Copy, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	var copies []Copy
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		info, err := os.Stat(from)
		if err != nil {
			return copies, fmt.Errorf("failed to stat %s: %w", from, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		to, err := security.JoinWithin(dst, TruncateTimestamp(e.Name(), digits))
		if err != nil {
			return copies, err
		}
		if err := copyFile(from, to, info); err != nil {
			return copies, err
		}
		monitoring.Logf("%s -> %s", from, to)
		copies = append(copies, Copy{From: from, To: to})
	}
	return copies, nil
}

// AlignScene aligns each named sensor folder from srcRoot into dstRoot and
// returns the total number of files copied.
func AlignScene(srcRoot, dstRoot string, folders []string, digits int) (int, error) {
	if err := os.MkdirAll(dstRoot, 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dstRoot, err)
	}
	total := 0
	for _, folder := range folders {
		copies, err := AlignFolder(filepath.Join(srcRoot, folder), filepath.Join(dstRoot, folder), digits)
		total += len(copies)
		if err != nil {
			return total, fmt.Errorf("folder %s: %w", folder, err)
		}
	}
	return total, nil
}

func copyFile(from, to string, info os.FileInfo) error {
	in, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", from, err)
	}
	defer in.Close()

	out, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", to, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", from, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", to, err)
	}

	// OpenFile only applies the mode to new files and is subject to umask.
	if err := os.Chmod(to, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", to, err)
	}
	if err := os.Chtimes(to, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set times of %s: %w", to, err)
	}
	return nil
}
