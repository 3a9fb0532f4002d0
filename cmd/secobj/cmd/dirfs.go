package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/absfs/absfs"
)

// dirFS is an absfs.FileSystem over the host filesystem rooted at root.
type dirFS struct {
	root string
}

func newDirFS(root string) *dirFS {
	return &dirFS{root: root}
}

func (fs *dirFS) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	path := filepath.Join(fs.root, name)
	if flag&os.O_CREATE != 0 {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, flag, perm)
}

func (fs *dirFS) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(filepath.Join(fs.root, name), perm)
}

func (fs *dirFS) MkdirAll(name string, perm os.FileMode) error {
	return os.MkdirAll(filepath.Join(fs.root, name), perm)
}

func (fs *dirFS) Remove(name string) error {
	return os.Remove(filepath.Join(fs.root, name))
}

func (fs *dirFS) RemoveAll(path string) error {
	return os.RemoveAll(filepath.Join(fs.root, path))
}

func (fs *dirFS) Rename(oldpath, newpath string) error {
	return os.Rename(filepath.Join(fs.root, oldpath), filepath.Join(fs.root, newpath))
}

func (fs *dirFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(filepath.Join(fs.root, name))
}

func (fs *dirFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(filepath.Join(fs.root, name), mode)
}

func (fs *dirFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(filepath.Join(fs.root, name), atime, mtime)
}

func (fs *dirFS) Chown(name string, uid, gid int) error {
	return os.Chown(filepath.Join(fs.root, name), uid, gid)
}

func (fs *dirFS) Separator() uint8 {
	return os.PathSeparator
}

func (fs *dirFS) ListSeparator() uint8 {
	return os.PathListSeparator
}

func (fs *dirFS) Chdir(dir string) error {
	return nil
}

func (fs *dirFS) Getwd() (string, error) {
	return "/", nil
}

func (fs *dirFS) TempDir() string {
	return os.TempDir()
}

func (fs *dirFS) Open(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *dirFS) Create(name string) (absfs.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (fs *dirFS) Truncate(name string, size int64) error {
	return os.Truncate(filepath.Join(fs.root, name), size)
}
