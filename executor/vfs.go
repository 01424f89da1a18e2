package executor

import (
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// VFS is the in-memory file namespace the guest sees mounted at "/".
// Paths are slash-separated; a leading "/" is optional.
type VFS struct {
	fs afero.Fs
}

// NewVFS returns an empty VFS.
func NewVFS() *VFS {
	return &VFS{fs: afero.NewMemMapFs()}
}

// key maps a guest path onto the relative form io/fs expects.
func key(p string) (string, bool) {
	k := strings.TrimPrefix(path.Clean("/"+p), "/")
	if k == "" || !fs.ValidPath(k) {
		return "", false
	}
	return k, true
}

// WriteFile creates or overwrites the file at p.
func (v *VFS) WriteFile(p string, content []byte) error {
	k, ok := key(p)
	if !ok {
		return &fs.PathError{Op: "write", Path: p, Err: fs.ErrInvalid}
	}
	if dir := path.Dir(k); dir != "." {
		if err := v.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(v.fs, k, content, 0o644)
}

// ReadFile returns the content of the file at p.
func (v *VFS) ReadFile(p string) ([]byte, error) {
	k, ok := key(p)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: p, Err: fs.ErrInvalid}
	}
	return afero.ReadFile(v.fs, k)
}

// FS exposes the namespace as an io/fs.FS for mounting into the guest.
func (v *VFS) FS() fs.FS {
	return afero.NewIOFS(v.fs)
}
