package style

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidCatalog = errors.New("invalid style catalog")

// Entry maps a style key to the prompt fragment injected into the instruction.
type Entry struct {
	Key        string `yaml:"key"`
	Descriptor string `yaml:"descriptor"`
}

// Catalog is an ordered, read-only set of styles. It is safe for concurrent use.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

type catalogFile struct {
	Styles []Entry `yaml:"styles"`
}

var defaultEntries = []Entry{
	{
		Key:        "ghibli",
		Descriptor: "the Ghibli style, painterly anime look, soft watercolor textures, lush natural environments, emotionally expressive characters with large eyes, subtle magical realism, nostalgic atmosphere, warm lighting, gentle brushwork.",
	},
	{
		Key:        "Muppet Realistic Style",
		Descriptor: "Muppet realistic style, 3D photo-realistic puppet look, visible stitching and felt fuzz, soft fabric textures, googly eyes, yarn hair, handmade materials under cinematic lighting, playful and exaggerated puppet expressions.",
	},
	{
		Key:        "Pixar 3D",
		Descriptor: "charming 3D animated style, clean, stylized character designs with expressive yet subtle facial animation, cinematic warm lighting, beautifully composed shots, high-quality polished textures, and a heartwarming tone. Emphasize storytelling through posture, expression, and framing.",
	},
	{
		Key:        "disney classic",
		Descriptor: "mid-century fairytale animation style, 2D cel animation with big expressive eyes, soft hand-painted backgrounds, gentle color gradients, magical lighting, graceful character poses, and a nostalgic storybook tone inspired by the golden age of animated films.",
	},
	{
		Key:        "Lego Style",
		Descriptor: "the Lego style, made entirely of plastic bricks, blocky shapes, visible stud textures, modular construction, bright primary colors, characters with iconic Lego faces and claw hands, 3D toy-like rendering.",
	},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultEntries)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a catalog from entries, keeping their order. Keys are matched
// exactly, including case and spaces.
func New(entries []Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no styles defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		key := strings.TrimSpace(e.Key)
		descriptor := strings.TrimSpace(e.Descriptor)
		if key == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty key", ErrInvalidCatalog, i)
		}
		if descriptor == "" {
			return nil, fmt.Errorf("%w: style %q has an empty descriptor", ErrInvalidCatalog, key)
		}
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("%w: duplicate style %q", ErrInvalidCatalog, key)
		}
		c.index[key] = len(c.entries)
		c.entries = append(c.entries, Entry{Key: key, Descriptor: descriptor})
	}
	return c, nil
}

// LoadFile reads a YAML catalog of the form `styles: [{key, descriptor}, ...]`.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read style catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return New(f.Styles)
}

// Lookup returns the descriptor for key.
func (c *Catalog) Lookup(key string) (string, bool) {
	i, ok := c.index[key]
	if !ok {
		return "", false
	}
	return c.entries[i].Descriptor, true
}

// Keys returns the style keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the catalog entries.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Len() int { return len(c.entries) }
