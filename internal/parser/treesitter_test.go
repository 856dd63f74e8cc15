package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderSupports(t *testing.T) {
	p := NewProvider()
	defer p.Close()
	for _, lang := range []Language{LangGo, LangPython, LangJavaScript, LangTypeScript, LangTSX, LangJava} {
		assert.True(t, p.Supports(lang), lang)
	}
	assert.False(t, p.Supports(LangRuby))

	_, err := p.Parse(context.Background(), LangRuby, []byte("puts 1"))
	assert.Error(t, err)
}

func TestProviderQuery(t *testing.T) {
	p := NewProvider()
	defer p.Close()

	src := []byte("def a():\n    b()\n\ndef c():\n    pass\n")
	tree, err := p.Parse(context.Background(), LangPython, src)
	require.NoError(t, err)
	defer tree.Close()
	assert.False(t, tree.HasErrors())

	matches, err := p.Query(tree, nil, `(function_definition name: (identifier) @name) @def`)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	name, ok := matches[0].Get("name")
	require.True(t, ok)
	assert.Equal(t, "a", name.Text)
	assert.Equal(t, 1, name.StartLine)

	second, _ := matches[1].Get("name")
	assert.Equal(t, "c", second.Text)
	assert.Equal(t, 4, second.StartLine)

	_, ok = matches[0].Get("missing")
	assert.False(t, ok)

	// Scoped to the first definition only.
	def, _ := matches[0].Get("def")
	calls, err := p.Query(tree, def.Node, `(call function: (identifier) @callee)`)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "b", calls[0].Captures[0].Text)
}

func TestProviderBadQuery(t *testing.T) {
	p := NewProvider()
	defer p.Close()
	tree, err := p.Parse(context.Background(), LangGo, []byte("package x\n"))
	require.NoError(t, err)
	defer tree.Close()

	_, err = p.Query(tree, nil, `(not_a_node_type) @x`)
	assert.Error(t, err)
}

func TestParseRecoversFromErrors(t *testing.T) {
	p := NewProvider()
	defer p.Close()
	tree, err := p.Parse(context.Background(), LangJavaScript, []byte("function (( {"))
	require.NoError(t, err)
	defer tree.Close()
	assert.True(t, tree.HasErrors())
}

func TestDottedName(t *testing.T) {
	tests := map[string]string{
		"foo":         "foo",
		"a.b.c":       "a.b.c",
		"a?.b":        "a.b",
		"obj\n  .run": "obj.run",
		"$el.find":    "$el.find",
		"make()":      "",
		"items[0]":    "",
		".x":          "",
		"x.":          "",
		"a..b":        "",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, DottedName(in), in)
	}
}
