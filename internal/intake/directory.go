package intake

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joseph-ayodele/ibansync/internal/common"
)

// EnsureDirs creates every directory in dirs that does not exist yet.
func EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return common.NewConfigError("create directory "+d, err)
		}
	}
	return nil
}

// List returns the regular, non-hidden files directly under dir in directory order.
// Files left behind by earlier runs are listed too.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, common.NewTransferError("read intake directory "+dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || IsHidden(e.Name()) {
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// renameFile is os.Rename; tests swap it to force the cross-device path.
var renameFile = os.Rename

// Archive moves path into processedDir under the same name and returns the new location.
// An archive already holding that name is replaced, whether the move is a rename or,
// across devices, a copy into a temporary file that is then renamed over the target.
func Archive(path, processedDir string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	target := filepath.Join(processedDir, filepath.Base(path))

	err := renameFile(path, target)
	if err == nil {
		logger.Info("intake.archive.ok", "file", path, "target", target)
		return target, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		logger.Error("intake.archive.failed", "file", path, "target", target, "error", err)
		return "", common.NewTransferError("archive "+path, err)
	}

	logger.Warn("intake.archive.cross_device", "file", path, "target", target)
	if err := copyInto(path, target); err != nil {
		logger.Error("intake.archive.copy_failed", "file", path, "target", target, "error", err)
		return "", common.NewTransferError("archive "+path, err)
	}
	if err := os.Remove(path); err != nil {
		logger.Error("intake.archive.remove_failed", "file", path, "error", err)
		return target, common.NewTransferError("remove archived "+path, err)
	}
	logger.Info("intake.archive.ok", "file", path, "target", target)
	return target, nil
}

// copyInto copies src next to dst under a hidden temporary name and renames it onto dst.
// On failure only the temporary file is removed; an existing dst is left as it was.
func copyInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(in)

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	if _, err := io.Copy(tmp, in); err != nil {
		cleanup()
		return fmt.Errorf("copy: %w", err)
	}
	if err := tmp.Chmod(fi.Mode().Perm()); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
