// Package bot loads the catalog of bots users can talk to.
package bot

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/botdesk/botdesk/internal/entitlement"
)

//go:embed bots.yaml
var defaultCatalog []byte

// Bot kinds.
const (
	KindChat  = "chat"
	KindImage = "image"
	KindAudio = "audio"
)

// ErrBotNotFound is returned for unknown bot ids.
var ErrBotNotFound = errors.New("bot not found")

// Bot is one catalog entry.
type Bot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Kind         string `json:"kind"`
	Model        string `json:"model"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	Premium      bool   `json:"premium,omitempty"`
}

// Capability returns the gate capability for using b. Image and audio bots
// and bots flagged premium are premium-only; other chat bots are metered.
func (b Bot) Capability() entitlement.Capability {
	if b.Premium || b.Kind != KindChat {
		return entitlement.PremiumOnly()
	}
	return entitlement.Metered(b.ID)
}

type file struct {
	Bots []Bot `json:"bots"`
}

// Catalog is an immutable, validated set of bots.
type Catalog struct {
	bots  map[string]Bot
	order []string
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading bot catalog: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes and validates a YAML (or JSON) catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parsing bot catalog: %w", err)
	}
	if len(f.Bots) == 0 {
		return nil, errors.New("bot catalog is empty")
	}

	c := &Catalog{bots: make(map[string]Bot, len(f.Bots))}
	for i, b := range f.Bots {
		if err := validate(b); err != nil {
			return nil, fmt.Errorf("bot #%d: %w", i, err)
		}
		if _, dup := c.bots[b.ID]; dup {
			return nil, fmt.Errorf("bot #%d: duplicate id %q", i, b.ID)
		}
		c.bots[b.ID] = b
		c.order = append(c.order, b.ID)
	}
	return c, nil
}

func validate(b Bot) error {
	if b.ID == "" {
		return errors.New("id is required")
	}
	switch b.Kind {
	case KindChat, KindImage, KindAudio:
	default:
		return fmt.Errorf("unknown kind %q", b.Kind)
	}
	if b.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// Get returns the bot with the given id.
func (c *Catalog) Get(id string) (Bot, error) {
	b, ok := c.bots[id]
	if !ok {
		return Bot{}, ErrBotNotFound
	}
	return b, nil
}

// List returns bots in file order.
func (c *Catalog) List() []Bot {
	out := make([]Bot, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.bots[id])
	}
	return out
}

// FirstOfKind returns the first bot of kind in file order.
func (c *Catalog) FirstOfKind(kind string) (Bot, error) {
	for _, id := range c.order {
		if c.bots[id].Kind == kind {
			return c.bots[id], nil
		}
	}
	return Bot{}, ErrBotNotFound
}
