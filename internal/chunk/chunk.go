// Package chunk regroups partitioned elements into pieces bounded by a
// character budget, with optional overlap between consecutive chunks.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/corpusworks/ingest/internal/element"
)

const (
	defaultMaxCharacters = 500
	defaultOverlap       = 0
)

// Chunker merges consecutive elements until the character budget is reached.
// Title elements always start a new chunk so a section heading stays with
// its body.
type Chunker struct {
	maxCharacters int
	overlap       int
}

func New(maxCharacters, overlap int) *Chunker {
	if maxCharacters <= 0 {
		maxCharacters = defaultMaxCharacters
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap >= maxCharacters {
		overlap = maxCharacters - 1
	}
	return &Chunker{maxCharacters: maxCharacters, overlap: overlap}
}

// Chunk implements the stage contract. The output elements are typed
// CompositeElement and carry the identifiers of the elements they merged.
func (c *Chunker) Chunk(ctx context.Context, els []element.Element) ([]element.Element, error) {
	if len(els) == 0 {
		return nil, nil
	}

	var out []element.Element
	var buf []element.Element
	size := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		out = append(out, c.composite(buf, len(out)))
		buf = nil
		size = 0
	}

	var tail string // overlap carried from the previous chunk
	for _, el := range els {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := len(el.Text)
		if el.Type == "Title" || (size > 0 && size+n > c.maxCharacters) {
			flush()
		}
		if tail != "" && len(buf) == 0 && el.Type != "Title" {
			el.Text = tail + "\n" + el.Text
			n = len(el.Text)
		}
		tail = ""
		buf = append(buf, el)
		size += n
		if size >= c.maxCharacters {
			if c.overlap > 0 {
				joined := joinTexts(buf)
				if len(joined) > c.overlap {
					cut := len(joined) - c.overlap
					// Never split a multibyte rune.
					for cut < len(joined) && !utf8.RuneStart(joined[cut]) {
						cut++
					}
					tail = joined[cut:]
				}
			}
			flush()
		}
	}
	flush()
	return out, nil
}

func (c *Chunker) composite(parts []element.Element, ordinal int) element.Element {
	text := joinTexts(parts)

	ids := make([]string, len(parts))
	for i, p := range parts {
		ids[i] = p.ID
	}

	meta := map[string]any{"orig_elements": ids}
	if len(parts) > 0 && parts[0].Metadata != nil {
		if fn, ok := parts[0].Metadata["filename"]; ok {
			meta["filename"] = fn
		}
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", ordinal, text)))
	return element.Element{
		ID:       hex.EncodeToString(sum[:])[:32],
		Type:     "CompositeElement",
		Text:     text,
		Metadata: meta,
	}
}

func joinTexts(parts []element.Element) string {
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}
