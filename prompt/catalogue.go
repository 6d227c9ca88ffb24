// Package prompt holds the channel catalogue and turns a channel, its recent
// history and the user's message into provider prompts.
package prompt

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/aindrajaya/ask-football/errors"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed channels.yaml
var defaultCatalogue []byte

// ChannelSpec is a channel with the AI persona that answers in it.
type ChannelSpec struct {
	domain.Channel `yaml:",inline"`
	Persona        string `yaml:"persona" validate:"required"`
}

// Catalogue lists the known channels and their AI personas.
type Catalogue struct {
	Default       domain.ChannelID `yaml:"default" validate:"required"`
	HistoryWindow int              `yaml:"history_window" validate:"gte=0"`
	Channels      []ChannelSpec    `yaml:"channels" validate:"required,min=1,dive"`
}

// LoadCatalogue reads the catalogue at path, or the embedded one when path is empty.
func LoadCatalogue(path string) (Catalogue, error) {
	data := defaultCatalogue
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return Catalogue{}, fmt.Errorf("read catalogue: %w", err)
		}
	}
	return ParseCatalogue(data)
}

func ParseCatalogue(data []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalogue{}, fmt.Errorf("parse catalogue: %w", err)
	}
	if err := validator.New().Struct(c); err != nil {
		return Catalogue{}, fmt.Errorf("invalid catalogue: %w", err)
	}
	ids := lo.Map(c.Channels, func(ch ChannelSpec, _ int) domain.ChannelID { return ch.ID })
	if dup := lo.FindDuplicates(ids); len(dup) > 0 {
		return Catalogue{}, fmt.Errorf("invalid catalogue: duplicated channel %q", dup[0])
	}
	if !lo.Contains(ids, c.Default) {
		return Catalogue{}, fmt.Errorf("invalid catalogue: default %q: %w", c.Default, errors.ErrUnknownChannel)
	}
	return c, nil
}

// Lookup returns the channel with id.
func (c Catalogue) Lookup(id domain.ChannelID) (ChannelSpec, error) {
	ch, ok := lo.Find(c.Channels, func(ch ChannelSpec) bool { return ch.ID == id })
	if !ok {
		return ChannelSpec{}, fmt.Errorf("%w: %q", errors.ErrUnknownChannel, id)
	}
	return ch, nil
}

func (c Catalogue) Has(id domain.ChannelID) bool {
	_, err := c.Lookup(id)
	return err == nil
}

// Persona returns the persona of id, falling back to the default channel's.
func (c Catalogue) Persona(id domain.ChannelID) string {
	if ch, err := c.Lookup(id); err == nil {
		return ch.Persona
	}
	ch, _ := c.Lookup(c.Default)
	return ch.Persona
}

func (c Catalogue) IDs() []domain.ChannelID {
	return lo.Map(c.Channels, func(ch ChannelSpec, _ int) domain.ChannelID { return ch.ID })
}
