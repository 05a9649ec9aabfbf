// Package docx reads, rewrites and builds WordprocessingML (.docx) packages.
// Only the main document part is interpreted; every other part is carried
// through byte for byte.
package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// MIMEType is the content type of a .docx file.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Ext is the file extension for generated documents.
const Ext = ".docx"

const mainPart = "word/document.xml"

// ErrNoMainPart is returned for zip files that are not Word documents.
var ErrNoMainPart = errors.New("docx: word/document.xml not found")

type part struct {
	name   string
	method uint16
	data   []byte
}

// Package is an opened .docx held entirely in memory.
type Package struct {
	parts []part
	main  int
}

// Open parses a .docx from bytes.
func Open(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("docx: open zip: %w", err)
	}

	p := &Package{main: -1}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("docx: open part %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("docx: read part %s: %w", f.Name, err)
		}
		if f.Name == mainPart {
			p.main = len(p.parts)
		}
		p.parts = append(p.parts, part{name: f.Name, method: f.Method, data: content})
	}

	if p.main < 0 {
		return nil, ErrNoMainPart
	}
	return p, nil
}

// OpenFile reads and parses the .docx at path.
func OpenFile(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(data)
}

// Body returns the main document XML.
func (p *Package) Body() []byte { return p.parts[p.main].data }

// SetBody replaces the main document XML.
func (p *Package) SetBody(body []byte) { p.parts[p.main].data = body }

// Bytes serialises the package, preserving part order and compression.
func (p *Package) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, pt := range p.parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: pt.name, Method: pt.method})
		if err != nil {
			return nil, fmt.Errorf("docx: create part %s: %w", pt.name, err)
		}
		if _, err := w.Write(pt.data); err != nil {
			return nil, fmt.Errorf("docx: write part %s: %w", pt.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("docx: close zip: %w", err)
	}
	return buf.Bytes(), nil
}
