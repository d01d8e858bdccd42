package diagram

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erdgen/internal/graph"
	"erdgen/internal/render"
	"erdgen/internal/symbols"
)

// fakeProvider serves fixed symbol trees and counts fetches per file.
type fakeProvider struct {
	trees   map[symbols.FileID][]symbols.Symbol
	fetches map[symbols.FileID]int
	err     error
}

func (p *fakeProvider) Symbols(_ context.Context, file symbols.FileID) ([]symbols.Symbol, error) {
	if p.fetches == nil {
		p.fetches = make(map[symbols.FileID]int)
	}
	p.fetches[file]++
	if p.err != nil {
		return nil, p.err
	}
	return p.trees[file], nil
}

// fakeText returns "<file>:<start line>" for ranged reads.
type fakeText struct{}

func (fakeText) Text(_ context.Context, file symbols.FileID, rng *symbols.Range) (string, error) {
	if rng == nil {
		return "whole:" + string(file), nil
	}
	return fmt.Sprintf("%s:%d", file, rng.Start.Line), nil
}

func sym(kind symbols.Kind, name string, children ...symbols.Symbol) symbols.Symbol {
	return symbols.Symbol{Kind: kind, Name: name, Children: children}
}

func at(s symbols.Symbol, file symbols.FileID, line int) symbols.Symbol {
	s.Range = symbols.Range{File: file, Start: symbols.Position{Line: line}}
	return s
}

func generate(t *testing.T, b *Builder, files ...symbols.FileID) string {
	t.Helper()
	g, err := b.Generate(context.Background(), files...)
	require.NoError(t, err)
	return render.Mermaid(g)
}

func TestClassMembers(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/user.rb": {
			sym(symbols.KindClass, "User",
				sym(symbols.KindMethod, "save"),
				sym(symbols.KindProperty, "name"),
				sym(symbols.KindConstructor, "initialize"),
				sym(symbols.KindConstant, "LIMIT"),
				sym(symbols.KindVariable, "count"),
				sym(symbols.KindLiteral, "label"),
				sym(symbols.KindOther, "ignored"),
			),
		},
	}}

	out := generate(t, New(p, fakeText{}, Options{}), "/user.rb")

	want := "classDiagram\n" +
		"class User\n" +
		"User : save()\n" +
		"User : name\n" +
		"User : initialize() User\n" +
		"User : static LIMIT\n" +
		"User : count\n" +
		"User : label\n" +
		"\n"
	assert.Equal(t, want, out)
}

func TestInterfaceAndNestedClasses(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/a.ts": {
			sym(symbols.KindInterface, "Runnable", sym(symbols.KindMethod, "run")),
			sym(symbols.KindClass, "Outer",
				sym(symbols.KindClass, "Inner", sym(symbols.KindMethod, "run")),
				sym(symbols.KindInterface, "Port", sym(symbols.KindMethod, "send")),
				sym(symbols.KindModule, "M", sym(symbols.KindMethod, "x")),
			),
		},
	}}

	out := generate(t, New(p, fakeText{}, Options{}), "/a.ts")

	want := "classDiagram\n" +
		"class Runnable\n" +
		"<<Interface>> Runnable\n" +
		"Runnable : run()\n" +
		"\n" +
		"class Outer\n" +
		"\n" +
		"class Inner\n" +
		"Inner : run()\n" +
		"\n" +
		"Inner <.. Outer\n"
	assert.Equal(t, want, out)
	assert.NotContains(t, out, "Port")
}

func TestNamespaceFlattening(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/blog.rb": {
			sym(symbols.KindModule, "Blog",
				sym(symbols.KindModule, "Admin",
					sym(symbols.KindClass, "Post"),
				),
				sym(symbols.KindClass, "Comment"),
			),
			sym(symbols.KindModule, "Empty"),
		},
	}}

	g, err := New(p, fakeText{}, Options{}).Generate(context.Background(), "/blog.rb")
	require.NoError(t, err)

	var names []string
	for _, n := range g.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"Post", "Comment"}, names)
	assert.Empty(t, g.Edges())
}

func TestModuleWithMembersIsMaterialized(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/util.rb": {
			sym(symbols.KindModule, "Util",
				sym(symbols.KindMethod, "slugify"),
				sym(symbols.KindClass, "Helper"),
				sym(symbols.KindModule, "Nested"),
			),
		},
	}}

	g, err := New(p, fakeText{}, Options{}).Generate(context.Background(), "/util.rb")
	require.NoError(t, err)

	util, ok := g.Node("Util")
	require.True(t, ok)
	assert.Equal(t, []string{"class Util"}, util.Headers)
	line, ok := util.Member("slugify")
	require.True(t, ok)
	assert.Equal(t, "Util : slugify()", line)

	_, ok = g.Node("Nested")
	assert.False(t, ok, "a module below a materialized node is not an element")
	assert.Equal(t, []graph.Edge{{From: "Util", To: "Helper"}}, g.Edges())
}

func TestUnknownRootKindIsSkipped(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/main.rb": {
			sym(symbols.KindMethod, "helper"),
			sym(symbols.KindClass, "App"),
		},
	}}

	g, err := New(p, fakeText{}, Options{}).Generate(context.Background(), "/main.rb")
	require.NoError(t, err)
	require.Len(t, g.Nodes(), 1)
	assert.Equal(t, "App", g.Nodes()[0].Name)
}

func TestLastWriteWinsAcrossSymbols(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/user.rb": {
			sym(symbols.KindClass, "User",
				sym(symbols.KindMethod, "name"),
				sym(symbols.KindProperty, "name"),
			),
		},
	}}

	out := generate(t, New(p, fakeText{}, Options{}), "/user.rb")
	assert.Equal(t, "classDiagram\nclass User\nUser : name\n\n", out)
}

func TestSameClassInTwoFilesIsMerged(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/a.rb": {sym(symbols.KindClass, "User", sym(symbols.KindMethod, "save"))},
		"/b.rb": {sym(symbols.KindClass, "User", sym(symbols.KindMethod, "destroy"))},
	}}

	out := generate(t, New(p, fakeText{}, Options{}), "/a.rb", "/b.rb")
	assert.Equal(t, "classDiagram\nclass User\nUser : save()\nUser : destroy()\n\n", out)
}

func TestReenteringAFileIsIdempotent(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/a.rb": {sym(symbols.KindClass, "A", sym(symbols.KindClass, "B"))},
	}}
	b := New(p, fakeText{}, Options{})

	once := generate(t, b, "/a.rb")
	twice := generate(t, b, "/a.rb", "/a.rb")
	assert.Equal(t, once, twice)
	assert.Equal(t, 2, p.fetches["/a.rb"], "one fetch per run")
}

// linkPlugin enters the file mapped to the node name and records calls.
type linkPlugin struct {
	links   map[string]symbols.FileID
	sources map[string]string
}

func (p *linkPlugin) AugmentNode(ctx context.Context, node *graph.Node, source string, h *Handle) error {
	if p.sources == nil {
		p.sources = make(map[string]string)
	}
	p.sources[node.Name] = source
	target, ok := p.links[node.Name]
	if !ok {
		return nil
	}
	h.SetMember("link", node.Name+" : link")
	h.AddRenderedEdge(node.Name, "X", node.Name+" --> X: links")
	return h.EnterFile(ctx, target)
}

func TestCrossFileCycleTerminates(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/a.rb": {at(sym(symbols.KindClass, "A"), "/a.rb", 3)},
		"/b.rb": {at(sym(symbols.KindClass, "B"), "/b.rb", 7)},
	}}
	plugin := &linkPlugin{links: map[string]symbols.FileID{"A": "/b.rb", "B": "/a.rb"}}
	b := New(p, fakeText{}, Options{Plugins: Registry{"ruby": plugin}})

	for _, start := range []symbols.FileID{"/a.rb", "/b.rb"} {
		p.fetches = nil
		g, err := b.Generate(context.Background(), start)
		require.NoError(t, err)
		assert.Len(t, g.Nodes(), 2)
		assert.Equal(t, 1, p.fetches["/a.rb"])
		assert.Equal(t, 1, p.fetches["/b.rb"])
	}

	assert.Equal(t, "/a.rb:3", plugin.sources["A"])
	assert.Equal(t, "/b.rb:7", plugin.sources["B"])
}

func TestPluginOnlyForItsLanguage(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/a.go": {sym(symbols.KindClass, "A")},
	}}
	plugin := &linkPlugin{}
	_, err := New(p, fakeText{}, Options{Plugins: Registry{"ruby": plugin}}).Generate(context.Background(), "/a.go")
	require.NoError(t, err)
	assert.Empty(t, plugin.sources)
}

// memberPlugin records member augmentation calls.
type memberPlugin struct {
	calls []string
}

func (p *memberPlugin) AugmentNode(context.Context, *graph.Node, string, *Handle) error { return nil }

func (p *memberPlugin) AugmentMember(_ context.Context, member, parent *symbols.Symbol, source string, h *Handle) error {
	p.calls = append(p.calls, parent.Name+"."+member.Name+"@"+source)
	h.AddEdge(parent.Name, "Dep")
	return nil
}

func TestMemberAugmentation(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/a.rb": {sym(symbols.KindClass, "A",
			at(sym(symbols.KindMethod, "run"), "/a.rb", 4),
			sym(symbols.KindProperty, "name"),
		)},
	}}

	off := &memberPlugin{}
	g, err := New(p, fakeText{}, Options{Plugins: Registry{"ruby": off}}).Generate(context.Background(), "/a.rb")
	require.NoError(t, err)
	assert.Empty(t, off.calls)
	assert.Empty(t, g.Edges())

	on := &memberPlugin{}
	g, err = New(p, fakeText{}, Options{Plugins: Registry{"ruby": on}, MemberAugmentation: true}).Generate(context.Background(), "/a.rb")
	require.NoError(t, err)
	assert.Equal(t, []string{"A.run@/a.rb:4"}, on.calls)
	assert.Equal(t, []graph.Edge{{From: "A", To: "Dep"}}, g.Edges())
}

func TestProviderErrorAbortsRun(t *testing.T) {
	boom := errors.New("boom")
	p := &fakeProvider{err: boom}

	_, err := New(p, fakeText{}, Options{}).Generate(context.Background(), "/a.rb")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

type failingPlugin struct{ err error }

func (p failingPlugin) AugmentNode(context.Context, *graph.Node, string, *Handle) error { return p.err }

func TestPluginErrorAbortsRun(t *testing.T) {
	boom := errors.New("plugin failed")
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/a.rb": {sym(symbols.KindClass, "A")},
	}}

	_, err := New(p, fakeText{}, Options{Plugins: Registry{"ruby": failingPlugin{boom}}}).Generate(context.Background(), "/a.rb")
	assert.ErrorIs(t, err, boom)
}

// keepingPlugin holds on to the handle it was given.
type keepingPlugin struct{ kept *Handle }

func (p *keepingPlugin) AugmentNode(_ context.Context, node *graph.Node, _ string, h *Handle) error {
	p.kept = h
	return nil
}

func TestHandleExpiresAfterCallback(t *testing.T) {
	p := &fakeProvider{trees: map[symbols.FileID][]symbols.Symbol{
		"/a.rb": {sym(symbols.KindClass, "A")},
		"/b.rb": {sym(symbols.KindClass, "B")},
	}}
	plugin := &keepingPlugin{}
	b := New(p, fakeText{}, Options{Plugins: Registry{"ruby": plugin}})

	g, err := b.Generate(context.Background(), "/a.rb")
	require.NoError(t, err)
	require.NotNil(t, plugin.kept)

	h := plugin.kept
	assert.NotPanics(t, func() {
		h.SetMember("late", "A : late")
		h.AddEdge("A", "B")
	})
	assert.ErrorIs(t, h.EnterFile(context.Background(), "/b.rb"), ErrHandleExpired)
	_, err = h.Text(context.Background(), "/a.rb", nil)
	assert.ErrorIs(t, err, ErrHandleExpired)
	_, err = h.ResolveDefinition(context.Background(), "/a.rb", symbols.Position{})
	assert.ErrorIs(t, err, ErrHandleExpired)

	assert.Equal(t, "classDiagram\nclass A\n\n", render.Mermaid(g))

	// a later run is not affected by the stale handle
	g, err = b.Generate(context.Background(), "/a.rb")
	require.NoError(t, err)
	h.AddEdge("A", "B")
	assert.Empty(t, g.Edges())
}
