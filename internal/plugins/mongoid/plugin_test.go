package mongoid

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erdgen/internal/diagram"
	"erdgen/internal/graph"
	"erdgen/internal/render"
	"erdgen/internal/symbols"
)

const userSource = `class User
  include Mongoid::Document
  field :email, :type => String
  encrypted_field :ssn, :type => String
  has_many :posts, :class_name => "Blog::Post"
  belongs_to :account

  def notify
    Mailer::Weekly.deliver(self)
    Time.now
  end
end
`

const postSource = `module Blog
  class Post
    field :title
  end
end
`

const mailerSource = `module Mailer
  class Weekly
    def deliver(user)
    end
  end
end
`

// workspace is an in-memory project: file contents, symbol trees and a
// resolver keyed by the identifier under the requested position.
type workspace struct {
	files   map[symbols.FileID]string
	trees   map[symbols.FileID][]symbols.Symbol
	defs    map[string]symbols.FileID
	lookups []string
	fail    error
}

func (w *workspace) Symbols(_ context.Context, file symbols.FileID) ([]symbols.Symbol, error) {
	return w.trees[file], nil
}

func (w *workspace) Text(_ context.Context, file symbols.FileID, rng *symbols.Range) (string, error) {
	doc, ok := w.files[file]
	if !ok {
		return "", errors.New("no such file")
	}
	if rng == nil {
		return doc, nil
	}
	return symbols.Slice(doc, *rng), nil
}

func (w *workspace) ResolveDefinition(_ context.Context, file symbols.FileID, pos symbols.Position) ([]symbols.Location, error) {
	if w.fail != nil {
		return nil, w.fail
	}
	doc := w.files[file]
	offset := symbols.OffsetAt(doc, pos)
	start, end := offset, offset
	for start > 0 && isIdent(doc[start-1]) {
		start--
	}
	for end < len(doc) && isIdent(doc[end]) {
		end++
	}
	word := doc[start:end]
	w.lookups = append(w.lookups, word)

	target, ok := w.defs[word]
	if !ok {
		return nil, nil
	}
	return []symbols.Location{{File: target}}, nil
}

func isIdent(c byte) bool {
	return c == '_' || c == ':' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func span(file symbols.FileID, sl, sc, el, ec int) symbols.Range {
	return symbols.Range{
		File:  file,
		Start: symbols.Position{Line: sl, Character: sc},
		End:   symbols.Position{Line: el, Character: ec},
	}
}

func newWorkspace() *workspace {
	return &workspace{
		files: map[symbols.FileID]string{
			"/app/user.rb":   userSource,
			"/app/post.rb":   postSource,
			"/app/mailer.rb": mailerSource,
		},
		trees: map[symbols.FileID][]symbols.Symbol{
			"/app/user.rb": {{
				Kind: symbols.KindClass, Name: "User", Range: span("/app/user.rb", 0, 0, 11, 3),
				Children: []symbols.Symbol{
					{Kind: symbols.KindMethod, Name: "notify", Range: span("/app/user.rb", 7, 2, 10, 5)},
				},
			}},
			"/app/post.rb": {{
				Kind: symbols.KindModule, Name: "Blog", Range: span("/app/post.rb", 0, 0, 4, 3),
				Children: []symbols.Symbol{
					{Kind: symbols.KindClass, Name: "Post", Range: span("/app/post.rb", 1, 2, 3, 5)},
				},
			}},
			"/app/mailer.rb": {{
				Kind: symbols.KindModule, Name: "Mailer", Range: span("/app/mailer.rb", 0, 0, 5, 3),
				Children: []symbols.Symbol{{
					Kind: symbols.KindClass, Name: "Weekly", Range: span("/app/mailer.rb", 1, 2, 4, 5),
					Children: []symbols.Symbol{
						{Kind: symbols.KindMethod, Name: "deliver", Range: span("/app/mailer.rb", 2, 4, 3, 7)},
					},
				}},
			}},
		},
		defs: map[string]symbols.FileID{
			"Blog::Post":     "/app/post.rb",
			"Mailer::Weekly": "/app/mailer.rb",
		},
	}
}

func build(t *testing.T, w *workspace, memberRefs bool) string {
	t.Helper()
	b := diagram.New(w, w, diagram.Options{
		Resolver:           w,
		Plugins:            diagram.Registry{Language: New(nil, nil)},
		MemberAugmentation: memberRefs,
	})
	g, err := b.Generate(context.Background(), "/app/user.rb")
	require.NoError(t, err)
	return render.Mermaid(g)
}

func TestAugmentNodeFieldsAndRelations(t *testing.T) {
	w := newWorkspace()

	out := build(t, w, false)

	want := strings.Join([]string{
		"classDiagram",
		"class User",
		"User : notify()",
		"User : email <String>",
		"User : ssn <encrypted>",
		"",
		"class Post",
		"Post : title",
		"",
		"User --> Post: has_many",
		"User --> account: belongs_to",
		"",
	}, "\n")
	assert.Equal(t, want, out)
	assert.Equal(t, []string{"Blog::Post"}, w.lookups)
}

func TestRelationWithoutResolutionStaysLocal(t *testing.T) {
	w := newWorkspace()
	w.defs = nil

	out := build(t, w, false)

	assert.Contains(t, out, "User --> Post: has_many\n")
	assert.NotContains(t, out, "class Post")
}

func TestAugmentMemberFollowsConstants(t *testing.T) {
	w := newWorkspace()

	out := build(t, w, true)

	want := strings.Join([]string{
		"classDiagram",
		"class User",
		"User : notify()",
		"User : email <String>",
		"User : ssn <encrypted>",
		"",
		"class Weekly",
		"Weekly : deliver()",
		"",
		"class Post",
		"Post : title",
		"",
		"Weekly <.. User",
		"User --> Post: has_many",
		"User --> account: belongs_to",
		"",
	}, "\n")
	assert.Equal(t, want, out)
	assert.Equal(t, []string{"Mailer::Weekly", "Time", "Blog::Post"}, w.lookups)
}

func TestResolverErrorAbortsGeneration(t *testing.T) {
	w := newWorkspace()
	boom := errors.New("resolver down")
	w.fail = boom

	b := diagram.New(w, w, diagram.Options{
		Resolver: w,
		Plugins:  diagram.Registry{Language: New(nil, nil)},
	})
	_, err := b.Generate(context.Background(), "/app/user.rb")
	assert.ErrorIs(t, err, boom)
}

func TestEncryptedFieldKeepsIdentifierKey(t *testing.T) {
	w := &workspace{
		files: map[symbols.FileID]string{
			"/a.rb": "class A\n  field :ssn\n  encrypted_field :ssn\nend\n",
		},
		trees: map[symbols.FileID][]symbols.Symbol{
			"/a.rb": {{Kind: symbols.KindClass, Name: "A", Range: span("/a.rb", 0, 0, 3, 3)}},
		},
	}
	b := diagram.New(w, w, diagram.Options{Plugins: diagram.Registry{Language: New(nil, nil)}})
	g, err := b.Generate(context.Background(), "/a.rb")
	require.NoError(t, err)

	node, ok := g.Node("A")
	require.True(t, ok)
	assert.Equal(t, []graph.Member{{Name: "ssn", Line: "A : ssn <encrypted>"}}, node.Members())
}

func TestDocumentPosition(t *testing.T) {
	src := "def notify\n    Mailer::Weekly.deliver"
	start := symbols.Position{Line: 7, Character: 2}

	assert.Equal(t, symbols.Position{Line: 7, Character: 6}, documentPosition(start, src, 4))
	assert.Equal(t, symbols.Position{Line: 8, Character: 12}, documentPosition(start, src, strings.Index(src, "Weekly")))
}

func TestUnknownKeywordIsReported(t *testing.T) {
	w := &workspace{
		files: map[symbols.FileID]string{
			"/a.rb": "class A\n  validates :email, presence: true\n  field :email # login\nend\n",
		},
		trees: map[symbols.FileID][]symbols.Symbol{
			"/a.rb": {{Kind: symbols.KindClass, Name: "A", Range: span("/a.rb", 0, 0, 3, 3)}},
		},
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := diagram.New(w, w, diagram.Options{Plugins: diagram.Registry{Language: New(nil, logger)}})
	g, err := b.Generate(context.Background(), "/a.rb")
	require.NoError(t, err)

	assert.Equal(t, "classDiagram\nclass A\nA : email\n\n", render.Mermaid(g))
	assert.Contains(t, logs.String(), `msg="unknown declaration keyword" plugin=mongoid keyword=validates name=email node=A`)
}
