package java

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/imyousuf/CodeContext/internal/graph"
	"github.com/imyousuf/CodeContext/internal/parser/parsertest"
)

const testSource = `package com.example.app;

import java.util.List;
import java.util.concurrent.*;
import static com.example.util.Strings.join;

public class OrderService {
    private final List<String> items;

    public OrderService(List<String> items) {
        this.items = items;
    }

    public String summary() {
        return join(items);
    }

    void reset() {}

    static class Builder {
        Builder add() { return this; }
    }
}

class Internal {
    public void run() {}
}

public enum Status {
    OPEN, CLOSED;

    public boolean terminal() { return this == CLOSED; }
}
`

func TestExtractDefinitions(t *testing.T) {
	r := parsertest.Extract(t, NewExtractor(), nil, "src/main/java/com/example/app/OrderService.java", testSource)

	assert.Equal(t, []string{"Builder", "Internal", "OrderService", "Status"}, r.Names(t, graph.NodeClass))
	assert.Equal(t, []string{"OrderService", "add", "reset", "run", "summary", "terminal"}, r.Names(t, graph.NodeMethod))
}

func TestExportPolicy(t *testing.T) {
	r := parsertest.Extract(t, NewExtractor(), nil, "OrderService.java", testSource)
	assert.Equal(t, []string{
		"OrderService",
		"OrderService.OrderService",
		"OrderService.summary",
		"Status",
		"Status.terminal",
	}, r.Exports(t))
	assert.Equal(t, graph.NodeMethod, r.ExportTarget(t, "OrderService.summary").Type)
}

func TestExtractImports(t *testing.T) {
	r := parsertest.Extract(t, NewExtractor(), nil, "OrderService.java", testSource)
	imports := r.Imports(t)

	assert.Equal(t, graph.ImportRecord{Module: "java.util.List", OriginalName: "List", Kind: graph.ImportNamed, Line: 3}, imports["List"])
	assert.Equal(t, "java.util.concurrent", imports[graph.WildcardAlias].Module)

	join := imports["join"]
	assert.Equal(t, "com.example.util.Strings", join.Module)
	assert.Equal(t, "Strings.join", join.OriginalName)
}

func TestCallees(t *testing.T) {
	src := `class A {
    void f() {
        foo();
        this.bar();
        list.add(1);
        new ArrayList<String>();
        Strings.join(x);
    }
}
`
	got := parsertest.Callees(t, NewExtractor(), src)
	assert.ElementsMatch(t, []string{"foo", "this.bar", "list.add", "ArrayList", "Strings.join"}, got)
}
