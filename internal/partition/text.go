package partition

import (
	"fmt"
	"os"
	"strings"

	"github.com/corpusworks/ingest/internal/element"
	"github.com/corpusworks/ingest/pkg/filedata"
)

// PartitionText splits a plain-text file into one NarrativeText element per
// blank-line-separated block.
func PartitionText(path string, fd filedata.FileData) ([]element.Element, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}

	filename := fd.SourceIdentifiers.Filename
	var els []element.Element
	for _, block := range strings.Split(string(content), "\n\n") {
		text := strings.TrimSpace(block)
		if text == "" {
			continue
		}
		els = append(els, element.Element{
			ID:   elementID(filename, text, len(els)),
			Type: "NarrativeText",
			Text: text,
			Metadata: map[string]any{
				"filename": filename,
			},
		})
	}
	return els, nil
}
