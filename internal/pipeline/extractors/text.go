package extractors

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// TextExtractor splits plain text into sentences with UAX #29 segmentation.
type TextExtractor struct{}

func (e *TextExtractor) Kind() Kind   { return KindText }
func (e *TextExtractor) Name() string { return "text" }

func (e *TextExtractor) Extract(path string, data []byte) ([]Unit, error) {
	base := filepath.Base(path)

	var units []Unit
	seg := sentences.FromString(string(data))
	for seg.Next() {
		s := strings.TrimSpace(seg.Value())
		if s == "" {
			continue
		}
		i := len(units) + 1
		units = append(units, Unit{
			Name:    fmt.Sprintf("%s_sentence_%d", base, i),
			Content: s,
			Source:  fmt.Sprintf("%s (phrase %d)", base, i),
		})
	}
	return units, nil
}
