package python

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser/parsertest"
)

const testSource = `"""A test module for parsing."""

import os
import pkg.mod as pm
from a import foo, bar as baz
from . import sibling
from .util import *

def public_fn():
    helper()

def _private():
    def inner():
        pass
    return inner

class Service:
    def run(self):
        self.stop()

    @staticmethod
    def stop():
        pass

if True:
    def conditional():
        pass
`

func TestExtractDefinitions(t *testing.T) {
	r := parsertest.Extract(t, NewExtractor(), nil, "svc.py", testSource)

	assert.Equal(t, []string{"_private", "conditional", "inner", "public_fn"}, r.Names(t, graph.NodeFunction))
	assert.Equal(t, []string{"run", "stop"}, r.Names(t, graph.NodeMethod))
	assert.Equal(t, []string{"Service"}, r.Names(t, graph.NodeClass))

	// Module body, four functions, the class and two methods.
	assert.Len(t, r.Pending, 8)
	assert.Equal(t, r.FileID, r.Pending[0].NodeID)
}

func TestExportPolicy(t *testing.T) {
	r := parsertest.Extract(t, NewExtractor(), nil, "svc.py", testSource)
	assert.Equal(t, []string{"Service", "conditional", "public_fn"}, r.Exports(t))
	assert.Equal(t, graph.NodeClass, r.ExportTarget(t, "Service").Type)
}

func TestGuardedDefinitionsAreExported(t *testing.T) {
	src := `try:
    from fast import loads
except ImportError:
    def loads(s):
        return s

if FLAG:
    def a():
        pass
elif OTHER:
    def b():
        pass
else:
    class C:
        def m(self):
            pass

with ctx():
    def w():
        def nested():
            pass
        return nested
`
	r := parsertest.Extract(t, NewExtractor(), nil, "guarded.py", src)

	assert.Equal(t, []string{"C", "a", "b", "loads", "w"}, r.Exports(t))
	assert.Equal(t, []string{"a", "b", "loads", "nested", "w"}, r.Names(t, graph.NodeFunction))
	assert.Equal(t, []string{"m"}, r.Names(t, graph.NodeMethod))
	assert.Contains(t, r.Imports(t), "loads")
}

func TestExtractImports(t *testing.T) {
	res := parsertest.StaticResolver{"a": "a.py"}
	r := parsertest.Extract(t, NewExtractor(), res, "svc.py", testSource)
	imports := r.Imports(t)

	assert.Equal(t, graph.ImportRecord{Module: "os", Kind: graph.ImportNamespace, Line: 3}, imports["os"])
	assert.Equal(t, "pkg.mod", imports["pm"].Module)

	foo := imports["foo"]
	assert.Equal(t, "a", foo.Module)
	assert.Equal(t, "foo", foo.OriginalName)
	assert.Equal(t, graph.ImportNamed, foo.Kind)
	assert.Equal(t, "a.py", foo.ResolvedFile)

	assert.Equal(t, "bar", imports["baz"].OriginalName)
	assert.Equal(t, ".sibling", imports["sibling"].Module)
	assert.Equal(t, ".util", imports[graph.WildcardAlias].Module)

	require.Contains(t, r.Names(t, graph.NodeImport), "baz")
}

func TestResolvedImportIsReverseIndexed(t *testing.T) {
	res := parsertest.StaticResolver{"a": "a.py"}
	r := parsertest.Extract(t, NewExtractor(), res, "b.py", "from a import foo\nfoo()\n")

	rec, err := r.Graph.Exports(t.Context(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py"}, rec.ImportedBy)
}

func TestCallees(t *testing.T) {
	src := "foo()\nobj.method(1)\nself.run()\nmake()()\nitems[0]()\n"
	got := parsertest.Callees(t, NewExtractor(), src)
	assert.ElementsMatch(t, []string{"foo", "obj.method", "self.run", "make"}, got)
}

func TestSyntaxErrorsDoNotAbort(t *testing.T) {
	r := parsertest.Extract(t, NewExtractor(), nil, "broken.py", "def ok():\n    pass\n\ndef broken(:\n")
	assert.Contains(t, r.Names(t, graph.NodeFunction), "ok")
}
