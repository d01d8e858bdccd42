package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erdgen/internal/symbols"
)

func TestSetMemberLastWriteWins(t *testing.T) {
	n := &Node{Name: "User"}
	n.SetMember("save", "User : save()")
	n.SetMember("name", "User : name")
	n.SetMember("save", "User : save() User")

	members := n.Members()
	require.Len(t, members, 2)
	assert.Equal(t, Member{Name: "save", Line: "User : save() User"}, members[0])
	assert.Equal(t, Member{Name: "name", Line: "User : name"}, members[1])
}

func TestUpsertReusesExistingNode(t *testing.T) {
	g := New()
	origin := &symbols.Symbol{Kind: symbols.KindClass, Name: "User"}

	first, created := g.Upsert("User", []string{"class User"}, origin, "/a.rb")
	require.True(t, created)
	first.SetMember("save", "User : save()")

	second, created := g.Upsert("User", []string{"class User", "<<Interface>> User"}, nil, "/b.rb")
	require.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"class User"}, second.Headers)
	assert.Equal(t, symbols.FileID("/a.rb"), second.File)

	line, ok := second.Member("save")
	assert.True(t, ok)
	assert.Equal(t, "User : save()", line)
}

func TestNodesKeepDiscoveryOrder(t *testing.T) {
	g := New()
	for _, name := range []string{"Zeta", "Alpha", "Mid", "Alpha"} {
		g.Upsert(name, nil, nil, "")
	}

	var names []string
	for _, n := range g.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, names)
}

func TestEdgesAreNotDeduplicated(t *testing.T) {
	g := New()
	g.AddEdge(Edge{From: "A", To: "B"})
	g.AddEdge(Edge{From: "A", To: "B"})
	assert.Len(t, g.Edges(), 2)
}

func TestVisitedSet(t *testing.T) {
	v := VisitedSet{}
	assert.True(t, v.Mark("/a.rb"))
	assert.False(t, v.Mark("/a.rb"))
	assert.True(t, v.Has("/a.rb"))
	assert.False(t, v.Has("/b.rb"))
}
