package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/driftbox/driftbox/internal/utils"
)

const (
	contentDir  = "files"
	logsDir     = "logs"
	metadataDir = ".data"
	lockFile    = "driftbox.lock"
	dbFile      = "driftbox.db"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the on-disk layout of one synced directory tree. Content
// lives under files/, everything the client manages for itself under .data/.
type Workspace struct {
	Root        string
	ContentDir  string
	MetadataDir string
	LogsDir     string
	DBPath      string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	metadata := filepath.Join(root, metadataDir)
	return &Workspace{
		Root:        root,
		ContentDir:  filepath.Join(root, contentDir),
		MetadataDir: metadata,
		LogsDir:     filepath.Join(root, logsDir),
		DBPath:      filepath.Join(metadata, dbFile),
		flock:       flock.New(filepath.Join(metadata, lockFile)),
	}, nil
}

// Setup locks the workspace and creates the required directories.
func (w *Workspace) Setup() error {
	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)

	for _, dir := range []string{w.ContentDir, w.MetadataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Lock takes the exclusive advisory lock so a second client cannot sync the
// same tree.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// don't delete a lock file some other process holds
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// ContentAbsPath returns the absolute path for a workspace-relative path.
func (w *Workspace) ContentAbsPath(relPath string) string {
	return filepath.Join(w.ContentDir, relPath)
}

// ContentRelPath returns the workspace-relative path for an absolute path
// under the content directory.
func (w *Workspace) ContentRelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.ContentDir, absPath)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path %s is outside the content directory", absPath)
	}
	return NormPath(relPath), nil
}

// IsMetadataPath reports whether an absolute path belongs to the client's
// own bookkeeping rather than synced content.
func (w *Workspace) IsMetadataPath(absPath string) bool {
	for _, dir := range []string{w.MetadataDir, w.LogsDir} {
		if absPath == dir || strings.HasPrefix(absPath, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// NormPath cleans a path, converts separators to slashes and strips leading
// slashes, giving the canonical form used as sync identity.
func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.TrimLeft(path, "/")
}
