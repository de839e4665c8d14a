package partition

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/pkg/filedata"
	"github.com/corpusworks/ingest/pkg/pipeerr"
)

// PartitionPDF extracts plain text page by page, emitting one NarrativeText
// element per page that carries any text. Encrypted or malformed files are
// reported as unsupported rather than failing the run.
func PartitionPDF(path string, fd filedata.FileData) ([]element.Element, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: pdf open: %v", pipeerr.ErrUnsupportedFileType, err)
	}
	defer f.Close()

	filename := fd.SourceIdentifiers.Filename
	var els []element.Element
	for page := 1; page <= reader.NumPage(); page++ {
		p := reader.Page(page)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: pdf page %d: %v", pipeerr.ErrUnsupportedFileType, page, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		els = append(els, element.Element{
			ID:   elementID(filename, text, len(els)),
			Type: "NarrativeText",
			Text: text,
			Metadata: map[string]any{
				"filename":    filename,
				"page_number": page,
			},
		})
	}
	return els, nil
}
