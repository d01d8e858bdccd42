// Package config loads the erdgen YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"erdgen/internal/attr"
	"erdgen/internal/lsp"
)

// FileName is looked up in the workspace root when no path is given.
const FileName = ".erdgen.yaml"

const (
	BackendTreeSitter = "treesitter"
	BackendLSP        = "lsp"

	ResolverIndex = "index"
	ResolverLSP   = "lsp"
	ResolverNone  = "none"
)

var (
	ErrUnknownBackend  = errors.New("unknown backend")
	ErrUnknownResolver = errors.New("unknown resolver")
	ErrUnknownCategory = errors.New("unknown attribute category")
)

type Config struct {
	// Backend provides symbol trees: treesitter or lsp.
	Backend string `yaml:"backend"`
	// Resolver answers definition lookups: index, lsp or none.
	Resolver string `yaml:"resolver"`
	// Plugins lists the enabled plugins by name.
	Plugins  []string       `yaml:"plugins"`
	LSP      LSPConfig      `yaml:"lsp"`
	Generate GenerateConfig `yaml:"generate"`
	Index    IndexConfig    `yaml:"index"`
	Log      LogConfig      `yaml:"log"`
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	Mongoid  MongoidConfig  `yaml:"mongoid"`
}

type LSPConfig struct {
	Servers map[string]ServerConfig `yaml:"servers"`
}

type ServerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Path    string   `yaml:"path"`
}

type GenerateConfig struct {
	MemberReferences bool `yaml:"member_references"`
	// Output is a file path; empty means stdout.
	Output string `yaml:"output"`
}

type IndexConfig struct {
	// Path of the SQLite file; empty means a per-workspace file under Home.
	Path    string `yaml:"path"`
	Workers int    `yaml:"workers"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type MongoidConfig struct {
	// Keywords adds or overrides declaration keywords, mapped to one of
	// field, encrypted_field or relation.
	Keywords map[string]string `yaml:"keywords"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Backend:  BackendTreeSitter,
		Resolver: ResolverIndex,
		Plugins:  []string{"mongoid"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Neo4j:    Neo4jConfig{URI: "neo4j://localhost:7687", User: "neo4j", Database: "neo4j"},
	}
}

// Load reads path over the defaults. When path is empty, FileName in root
// is used if it exists. Environment overrides are applied last.
func Load(path, root string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, FileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ERDGEN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ERDGEN_NEO4J_PASSWORD"); v != "" {
		c.Neo4j.Password = v
	}
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(c.Backend)
	c.Resolver = strings.ToLower(c.Resolver)
	if c.Backend != BackendTreeSitter && c.Backend != BackendLSP {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.Resolver != ResolverIndex && c.Resolver != ResolverLSP && c.Resolver != ResolverNone {
		return fmt.Errorf("%w: %q", ErrUnknownResolver, c.Resolver)
	}
	if _, err := c.Vocabulary(); err != nil {
		return err
	}
	return nil
}

// PluginEnabled reports whether name is listed in Plugins.
func (c *Config) PluginEnabled(name string) bool {
	return slices.Contains(c.Plugins, name)
}

// Servers merges the configured language servers over lsp.DefaultServers.
func (c *Config) Servers() map[string]lsp.ServerConfig {
	servers := lsp.DefaultServers()
	for lang, s := range c.LSP.Servers {
		srv := servers[lang]
		srv.Language = lang
		if s.Command != "" {
			srv.Command = s.Command
			srv.Args = s.Args
		} else if s.Args != nil {
			srv.Args = s.Args
		}
		if s.Path != "" {
			srv.Path = s.Path
		}
		servers[lang] = srv
	}
	return servers
}

// Vocabulary returns attr.DefaultVocabulary extended by Mongoid.Keywords.
func (c *Config) Vocabulary() (attr.Vocabulary, error) {
	vocab := attr.DefaultVocabulary()
	for keyword, category := range c.Mongoid.Keywords {
		cat, ok := parseCategory(category)
		if !ok {
			return nil, fmt.Errorf("%w: %s: %q", ErrUnknownCategory, keyword, category)
		}
		vocab[keyword] = cat
	}
	return vocab, nil
}

// IndexPath resolves Index.Path for the workspace root.
func (c *Config) IndexPath(root string) (string, error) {
	if c.Index.Path == "" {
		return DefaultIndexPath(root)
	}
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path, nil
	}
	return filepath.Join(root, c.Index.Path), nil
}

func parseCategory(name string) (attr.Category, bool) {
	for _, cat := range []attr.Category{attr.CategoryField, attr.CategoryEncryptedField, attr.CategoryRelation} {
		if cat.String() == name {
			return cat, true
		}
	}
	return 0, false
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:6])
}
