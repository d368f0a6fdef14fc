package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	potion, ok := c.Lookup("hp_potion")
	require.True(t, ok)
	assert.Equal(t, "Health Potion", potion.Name)
	assert.Equal(t, "hp_potion", potion.Kind)
	assert.Equal(t, 40, potion.Price)

	_, ok = c.Lookup("dragon_egg")
	assert.False(t, ok)
}

func TestItems_SortedByPriceThenID(t *testing.T) {
	items := Default().Items()
	require.Len(t, items, 4)

	assert.Equal(t, "hp_potion", items[0].ID)
	assert.Equal(t, "mana_potion", items[1].ID)
	assert.Equal(t, "elixir", items[2].ID)
	assert.Equal(t, "trophy", items[3].ID)
}

func TestParse_DescriptionDefaults(t *testing.T) {
	c, err := Parse("shop.cue", []byte(`
items: scroll: {
	name:  "Scroll"
	kind:  "scroll"
	price: 5
}
`))
	require.NoError(t, err)

	item, ok := c.Lookup("scroll")
	require.True(t, ok)
	assert.Equal(t, "", item.Description)
	assert.Equal(t, 5, item.Price)
}

func TestParse_QuotedKeys(t *testing.T) {
	c, err := Parse("shop.cue", []byte(`
items: "hp-potion": {
	name:  "Small Potion"
	kind:  "hp_potion"
	price: 10
}
`))
	require.NoError(t, err)

	item, ok := c.Lookup("hp-potion")
	require.True(t, ok)
	assert.Equal(t, "hp-potion", item.ID)
}

func TestParse_RejectsNegativePrice(t *testing.T) {
	_, err := Parse("shop.cue", []byte(`
items: scroll: {
	name:  "Scroll"
	kind:  "scroll"
	price: -5
}
`))
	require.Error(t, err)
}

func TestParse_RejectsMissingName(t *testing.T) {
	_, err := Parse("shop.cue", []byte(`
items: scroll: {
	kind:  "scroll"
	price: 5
}
`))
	require.Error(t, err)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("broken.cue", []byte(`items: {`))
	require.Error(t, err)
}

func TestLoadError_Format(t *testing.T) {
	err := &LoadError{Field: "items", Message: "items is required"}
	assert.Equal(t, "items: items is required", err.Error())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
items: gem: {
	name:  "Gem"
	kind:  "gem"
	price: 100
}
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	_, ok := c.Lookup("gem")
	assert.True(t, ok)

	c, err = Load("")
	require.NoError(t, err)
	assert.Len(t, c.Items(), 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
