package ports

// FileSystem is where decode reports and frame snapshots are stored.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces path with data and creates missing parent
	// directories. Readers see either the old or the new content.
	WriteFile(path string, data []byte) error

	MkdirAll(path string) error

	Exists(path string) (bool, error)

	// Remove deletes a file or an empty directory. A missing path is not
	// an error.
	Remove(path string) error
}
