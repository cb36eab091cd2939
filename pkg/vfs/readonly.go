// ABOUTME: Read-only wrapper around any Vfs
// ABOUTME: Mutations fail with ErrReadOnly, reads pass through

package vfs

// ReadOnlyVfs rejects every mutating operation on the wrapped store.
type ReadOnlyVfs struct {
	inner Vfs
}

// NewReadOnlyVfs wraps a Vfs so that only reads succeed.
func NewReadOnlyVfs(inner Vfs) *ReadOnlyVfs {
	return &ReadOnlyVfs{inner: inner}
}

func (v *ReadOnlyVfs) Exists(path string) (bool, error)    { return v.inner.Exists(path) }
func (v *ReadOnlyVfs) IsDir(path string) (bool, error)     { return v.inner.IsDir(path) }
func (v *ReadOnlyVfs) IsFile(path string) (bool, error)    { return v.inner.IsFile(path) }
func (v *ReadOnlyVfs) ReadFile(path string) ([]byte, error) { return v.inner.ReadFile(path) }
func (v *ReadOnlyVfs) ReadDir(path string) ([]string, error) { return v.inner.ReadDir(path) }

func (v *ReadOnlyVfs) CreateDirAll(path string) error          { return ErrReadOnly }
func (v *ReadOnlyVfs) WriteFile(path string, data []byte) error { return ErrReadOnly }
func (v *ReadOnlyVfs) RemoveFile(path string) error            { return ErrReadOnly }
func (v *ReadOnlyVfs) Rename(src, dst string) error            { return ErrReadOnly }
func (v *ReadOnlyVfs) SyncFile(path string) error              { return nil }
func (v *ReadOnlyVfs) SyncAll() error                          { return nil }

// Lock succeeds without touching the underlying store; a reader holds
// no exclusive claim on the directory.
func (v *ReadOnlyVfs) Lock(path string) error   { return nil }
func (v *ReadOnlyVfs) Unlock(path string) error { return nil }
