package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"erdgen/internal/graph"
)

func TestMermaid(t *testing.T) {
	g := graph.New()

	user, _ := g.Upsert("User", []string{"class User"}, nil, "")
	user.SetMember("save", "User : save()")
	user.SetMember("name", "User : name")

	repo, _ := g.Upsert("Repo", []string{"class Repo", "<<Interface>> Repo"}, nil, "")
	repo.SetMember("find", "Repo : find()")

	g.AddEdge(graph.Edge{From: "User", To: "Address"})
	g.AddEdge(graph.Edge{From: "User", To: "Post", Rendered: "User --> Post: has_many"})
	g.AddEdge(graph.Edge{From: "User", To: "Address"})

	want := "classDiagram\n" +
		"class User\n" +
		"User : save()\n" +
		"User : name\n" +
		"\n" +
		"class Repo\n" +
		"<<Interface>> Repo\n" +
		"Repo : find()\n" +
		"\n" +
		"Address <.. User\n" +
		"User --> Post: has_many\n" +
		"Address <.. User\n"

	assert.Equal(t, want, Mermaid(g))
}

func TestMermaidEmptyGraph(t *testing.T) {
	assert.Equal(t, "classDiagram\n", Mermaid(graph.New()))
}
