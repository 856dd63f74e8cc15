package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	lang Language
	exts []string
}

func (s stubExtractor) Language() Language { return s.lang }
func (s stubExtractor) Extensions() []string { return s.exts }
func (s stubExtractor) Extract(*FileContext) error { return nil }
func (s stubExtractor) CallQuery() string { return "" }
func (s stubExtractor) Callee(Match, []byte) string { return "" }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(stubExtractor{lang: LangPython, exts: []string{".py", ".PYI"}})
	r.Register(stubExtractor{lang: LangGo, exts: []string{".go"}})

	e, ok := r.Get(LangPython)
	require.True(t, ok)
	assert.Equal(t, LangPython, e.Language())

	_, ok = r.Get(LangJava)
	assert.False(t, ok)

	assert.Equal(t, []string{".go", ".py", ".pyi"}, r.SupportedExtensions())

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, LangPython, all[0].Language())
	assert.Equal(t, LangGo, all[1].Language())
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	r.Register(stubExtractor{lang: LangGo, exts: []string{".go"}})
	r.Register(stubExtractor{lang: LangGo, exts: []string{".go", ".gotmpl"}})
	assert.Len(t, r.All(), 1)
	assert.Equal(t, []string{".go", ".gotmpl"}, r.SupportedExtensions())
}
