package bulk

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"
)

const archiveLayout = "20060102_150405"

// ArchiveName is the download name for an archive generated at t.
func ArchiveName(t time.Time) string {
	return "generated_faxes_" + t.Format(archiveLayout) + ".zip"
}

// Archive is a zip of generated documents in the scratch directory. The
// holder must call Release once the archive has been delivered.
type Archive struct {
	Name    string   `json:"name"`
	Path    string   `json:"-"`
	Entries []string `json:"entries"`
	Size    int64    `json:"size"`

	releaseOnce sync.Once
	releaseErr  error
}

// Open returns a reader over the archive bytes.
func (a *Archive) Open() (io.ReadCloser, error) {
	return os.Open(a.Path)
}

// Release deletes the archive file. Safe to call more than once.
func (a *Archive) Release() error {
	a.releaseOnce.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.releaseErr = err
		}
	})
	return a.releaseErr
}

// archiveWriter streams documents into a zip as rows complete. Entry names
// are made unique with -2, -3 ... before the extension.
type archiveWriter struct {
	name     string
	modified time.Time
	f        *os.File
	zw       *zip.Writer
	used     map[string]bool
	entries  []string
}

func newArchiveWriter(dir string, now time.Time) (*archiveWriter, error) {
	f, err := os.CreateTemp(dir, "archive-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	return &archiveWriter{
		name:     ArchiveName(now),
		modified: now,
		f:        f,
		zw:       zip.NewWriter(f),
		used:     make(map[string]bool),
	}, nil
}

// uniqueEntry returns name, or name with the lowest free numeric suffix.
func (w *archiveWriter) uniqueEntry(name string) string {
	if !w.used[name] {
		w.used[name] = true
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if !w.used[candidate] {
			w.used[candidate] = true
			return candidate
		}
	}
}

// add copies the file at src into the archive and returns the entry name.
func (w *archiveWriter) add(name, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer in.Close()

	entry := w.uniqueEntry(name)
	dst, err := w.zw.CreateHeader(&zip.FileHeader{Name: entry, Method: zip.Deflate, Modified: w.modified})
	if err != nil {
		return "", fmt.Errorf("create archive entry: %w", err)
	}
	if _, err := io.Copy(dst, in); err != nil {
		return "", fmt.Errorf("write archive entry: %w", err)
	}
	w.entries = append(w.entries, entry)
	return entry, nil
}

func (w *archiveWriter) finish() (*Archive, error) {
	if err := w.zw.Close(); err != nil {
		w.abort()
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	info, err := w.f.Stat()
	if err != nil {
		w.abort()
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return &Archive{Name: w.name, Path: w.f.Name(), Entries: w.entries, Size: info.Size()}, nil
}

func (w *archiveWriter) abort() {
	w.f.Close()
	os.Remove(w.f.Name())
}
