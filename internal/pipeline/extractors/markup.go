package extractors

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const DefaultFenceTag = "go"

// MarkupExtractor keeps the bodies of fenced code blocks opened with
// "```<tag>" and closed with "```".
type MarkupExtractor struct {
	tag   string
	fence *regexp.Regexp
}

func NewMarkupExtractor(tag string) *MarkupExtractor {
	if tag == "" {
		tag = DefaultFenceTag
	}
	return &MarkupExtractor{
		tag:   tag,
		fence: regexp.MustCompile("(?s)```" + regexp.QuoteMeta(tag) + "[ \t]*\r?\n(.*?)```"),
	}
}

func (e *MarkupExtractor) Kind() Kind   { return KindMarkup }
func (e *MarkupExtractor) Name() string { return "markup" }
func (e *MarkupExtractor) Tag() string  { return e.tag }

func (e *MarkupExtractor) Extract(path string, data []byte) ([]Unit, error) {
	base := filepath.Base(path)

	var units []Unit
	for i, m := range e.fence.FindAllSubmatch(data, -1) {
		units = append(units, Unit{
			Name:    fmt.Sprintf("%s_block_%d_from_%s", e.tag, i+1, base),
			Content: strings.TrimSpace(string(m[1])),
			Source:  path,
		})
	}
	return units, nil
}
