package extractors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithNameSuffix(".golden"),
	)
}

func marshalUnits(t *testing.T, units []Unit) []byte {
	t.Helper()
	b, err := json.MarshalIndent(units, "", "  ")
	require.NoError(t, err)
	return b
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"main.go", KindGoSource},
		{"/src/pkg/store.go", KindGoSource},
		{"README.md", KindMarkup},
		{"guide.markdown", KindMarkup},
		{"notes.txt", KindText},
		{"Makefile", KindText},
		{".hidden", KindText},
		{"MAIN.GO", KindText},
		{"README.MD", KindText},
		{"archive.go.bak", KindText},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path))
		})
	}
}

func TestRegistryDispatch(t *testing.T) {
	reg := CreateDefaultRegistry("")

	for path, name := range map[string]string{
		"a.go":    "go",
		"a.md":    "markup",
		"a.txt":   "text",
		"unknown": "text",
	} {
		e, err := reg.For(path)
		require.NoError(t, err)
		assert.Equal(t, name, e.Name(), path)
	}
}

func TestRegistryMissingKind(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Extract("file.xyz", []byte("hello"))
	assert.True(t, errors.Is(err, ErrNoExtractor))
}

func TestTextExtractorGolden(t *testing.T) {
	units, err := (&TextExtractor{}).Extract(filepath.Join("testdata", "facts.txt"), readFixture(t, "facts.txt"))
	require.NoError(t, err)
	require.Len(t, units, 3)
	newGoldie(t).Assert(t, "text_facts", marshalUnits(t, units))
}

func TestTextExtractorEmpty(t *testing.T) {
	units, err := (&TextExtractor{}).Extract("empty.txt", nil)
	require.NoError(t, err)
	assert.Empty(t, units)

	units, err = (&TextExtractor{}).Extract("blank.txt", []byte("  \n\n\t "))
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestTextExtractorIndexesSkipBlankSegments(t *testing.T) {
	units, err := (&TextExtractor{}).Extract("doc.txt", []byte("\n\nFirst one.   \n\n\nSecond one."))
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "doc.txt_sentence_1", units[0].Name)
	assert.Equal(t, "First one.", units[0].Content)
	assert.Equal(t, "doc.txt_sentence_2", units[1].Name)
	assert.Equal(t, "doc.txt (phrase 2)", units[1].Source)
}

func TestGoExtractorGolden(t *testing.T) {
	units, err := (&GoExtractor{}).Extract("sample.go", readFixture(t, "sample.go.txt"))
	require.NoError(t, err)
	newGoldie(t).Assert(t, "go_sample", marshalUnits(t, units))
}

func TestGoExtractorClassFunctionPair(t *testing.T) {
	// Declaration order must not change what is extracted.
	const src = `package p

func f(a, b int) {}

type X struct {
	Parent
}
`
	units, err := (&GoExtractor{}).Extract("/tmp/p.go", []byte(src))
	require.NoError(t, err)
	require.Len(t, units, 2)

	byName := map[string]Unit{}
	for _, u := range units {
		byName[u.Name] = u
		assert.Equal(t, "/tmp/p.go", u.Source)
	}
	assert.Contains(t, byName["go_class:X"].Content, "Inherits from: [Parent].")
	assert.Contains(t, byName["go_function:f"].Content, "Arguments: [a, b].")
}

func TestGoExtractorMalformed(t *testing.T) {
	units, err := (&GoExtractor{}).Extract("broken.go", []byte("package p\n\nfunc {{{\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.Nil(t, units)
}

func TestGoExtractorGroupedTypeDocs(t *testing.T) {
	const src = `package p

// Group comment.
type (
	// A is documented.
	A struct{}
	B interface{}
)
`
	units, err := (&GoExtractor{}).Extract("g.go", []byte(src))
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "A is documented.", units[0].Content)
	assert.Equal(t, "Class 'B' has no description.", units[1].Content)
}

func TestGoExtractorGenericReceiver(t *testing.T) {
	const src = `package p

type Set[T comparable] struct{}

// Add inserts v.
func (s *Set[T]) Add(v T) {}
`
	units, err := (&GoExtractor{}).Extract("set.go", []byte(src))
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "go_function:Set.Add", units[1].Name)
	assert.Equal(t, "Add inserts v.\nArguments: [v].", units[1].Content)
}

func TestGoExtractorRepeatedInit(t *testing.T) {
	const src = `package p

func init() {}

// Second init.
func init() {}

func _() {}

func _() {}
`
	units, err := (&GoExtractor{}).Extract("boot.go", []byte(src))
	require.NoError(t, err)

	var names []string
	for _, u := range units {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{
		"go_function:init",
		"go_function:init#2",
		"go_function:_",
		"go_function:_#2",
	}, names)
	assert.Equal(t, "Second init.", units[1].Content)
}

func TestMarkupExtractorGolden(t *testing.T) {
	path := filepath.Join("testdata", "notes.md")
	units, err := NewMarkupExtractor("go").Extract(path, readFixture(t, "notes.md"))
	require.NoError(t, err)
	newGoldie(t).Assert(t, "markup_notes", marshalUnits(t, units))
}

func TestMarkupExtractorNoBlocks(t *testing.T) {
	units, err := NewMarkupExtractor("go").Extract("plain.md", []byte("# Title\n\nJust prose.\n"))
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestMarkupExtractorCustomTag(t *testing.T) {
	doc := "```sql\nSELECT 1;\n```\n```go\nskip()\n```\n"
	e := NewMarkupExtractor("sql")
	units, err := e.Extract("/docs/q.markdown", []byte(doc))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "sql_block_1_from_q.markdown", units[0].Name)
	assert.Equal(t, "SELECT 1;", units[0].Content)
	assert.Equal(t, "/docs/q.markdown", units[0].Source)
}
