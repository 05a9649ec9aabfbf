package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
)

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

// ---------------------------------------------------------------------------
// WordprocessingML element types
// ---------------------------------------------------------------------------

type document struct {
	XMLName xml.Name `xml:"w:document"`
	XmlnsW  string   `xml:"xmlns:w,attr"`
	Body    body     `xml:"w:body"`
}

type body struct {
	Paragraphs []paragraph `xml:"w:p"`
}

type paragraph struct {
	Props *paragraphProps `xml:"w:pPr,omitempty"`
	Runs  []run           `xml:"w:r"`
}

type paragraphProps struct {
	Justify *valAttr `xml:"w:jc,omitempty"`
	Spacing *spacing `xml:"w:spacing,omitempty"`
}

type spacing struct {
	Before string `xml:"w:before,attr,omitempty"`
	After  string `xml:"w:after,attr,omitempty"`
}

type run struct {
	Props *runProps `xml:"w:rPr,omitempty"`
	Text  runText   `xml:"w:t"`
}

type runProps struct {
	Bold *empty   `xml:"w:b,omitempty"`
	Size *valAttr `xml:"w:sz,omitempty"`
}

type runText struct {
	Space string `xml:"xml:space,attr,omitempty"`
	Value string `xml:",chardata"`
}

type valAttr struct {
	Val string `xml:"w:val,attr"`
}

type empty struct{}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Builder assembles a simple single-column document from scratch.
type Builder struct {
	paragraphs []paragraph
}

// NewBuilder returns an empty document builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Title adds a centred, large bold line.
func (b *Builder) Title(text string) {
	b.paragraphs = append(b.paragraphs, paragraph{
		Props: &paragraphProps{Justify: &valAttr{Val: "center"}, Spacing: &spacing{After: "240"}},
		Runs:  []run{boldRun(text, "32")},
	})
}

// Heading adds a bold section heading.
func (b *Builder) Heading(text string) {
	b.paragraphs = append(b.paragraphs, paragraph{
		Props: &paragraphProps{Spacing: &spacing{Before: "240", After: "120"}},
		Runs:  []run{boldRun(text, "26")},
	})
}

// Field adds a "Label: value" line with a bold label.
func (b *Builder) Field(label, value string) {
	b.paragraphs = append(b.paragraphs, paragraph{
		Runs: []run{boldRun(label+": ", ""), plainRun(value)},
	})
}

// Paragraph adds a plain line of text.
func (b *Builder) Paragraph(text string) {
	b.paragraphs = append(b.paragraphs, paragraph{Runs: []run{plainRun(text)}})
}

// Bytes serialises the document as a .docx package. Everything is written
// to memory, so the only possible failures are encoder bugs; those yield a
// package with an empty body rather than an error.
func (b *Builder) Bytes() []byte {
	doc := document{XmlnsW: wordNamespace, Body: body{Paragraphs: b.paragraphs}}
	bodyXML, err := xml.Marshal(doc)
	if err != nil {
		bodyXML = []byte(`<w:document xmlns:w="` + wordNamespace + `"><w:body/></w:document>`)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(rootRelsXML)},
		{mainPart, append([]byte(xml.Header), bodyXML...)},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			continue
		}
		w.Write(p.data)
	}
	zw.Close()
	return buf.Bytes()
}

func boldRun(text, size string) run {
	props := &runProps{Bold: &empty{}}
	if size != "" {
		props.Size = &valAttr{Val: size}
	}
	return run{Props: props, Text: runText{Space: "preserve", Value: text}}
}

func plainRun(text string) run {
	return run{Text: runText{Space: "preserve", Value: text}}
}
