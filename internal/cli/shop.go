package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lifequest/internal/catalog"
	"github.com/roach88/lifequest/internal/inventory"
	"github.com/roach88/lifequest/internal/ledger"
)

// NewShopCommand creates the shop command, which lists the catalog.
func NewShopCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shop",
		Short: "List the items for sale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				return out.Success(shopView(s.engine.Catalog()))
			})
		},
	}
}

// NewBuyCommand creates the buy command.
func NewBuyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <item-id>",
		Short: "Buy one unit of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				entry, err := s.engine.Buy(ctx, args[0])
				if err != nil {
					return out.EngineError("buy", err)
				}
				return out.Success(entryView(entry))
			})
		},
	}
}

// NewUseCommand creates the use command.
func NewUseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use <item-id>",
		Short: "Use one unit of an owned item",
		Long: `Use one unit of an owned item and apply its effect. Items without
an effect are simply consumed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				res, err := s.engine.UseItem(ctx, args[0])
				if err != nil {
					return out.EngineError("use", err)
				}
				return out.Success(useView(res))
			})
		},
	}
}

type shopView []catalog.Item

// MarshalJSON includes the item ids, which catalog.Item leaves out.
func (v shopView) MarshalJSON() ([]byte, error) {
	type item struct {
		ID string `json:"id"`
		catalog.Item
	}
	items := make([]item, len(v))
	for i, it := range v {
		items[i] = item{ID: it.ID, Item: it}
	}
	return json.Marshal(items)
}

func (v shopView) String() string {
	lines := make([]string, len(v))
	for i, it := range v {
		lines[i] = fmt.Sprintf("%-12s %4d coins  %s - %s", it.ID, it.Price, it.Name, it.Description)
	}
	return strings.Join(lines, "\n")
}

type entryView inventory.Entry

func (v entryView) MarshalJSON() ([]byte, error) {
	return json.Marshal(inventory.Entry(v))
}

func (v entryView) String() string {
	return "Bought " + formatEntry(inventory.Entry(v))
}

type useView inventory.UseResult

func (v useView) MarshalJSON() ([]byte, error) {
	return json.Marshal(inventory.UseResult(v))
}

func (v useView) String() string {
	var gains []string
	resources := make([]string, 0, len(v.Restored))
	for r := range v.Restored {
		resources = append(resources, string(r))
	}
	sort.Strings(resources)
	for _, r := range resources {
		gains = append(gains, fmt.Sprintf("+%g %s", v.Restored[ledger.Resource(r)], r))
	}

	line := "Used " + v.ItemID
	if len(gains) > 0 {
		line += ": " + strings.Join(gains, ", ")
	}
	return line + fmt.Sprintf(" (%d left)", v.Remaining)
}
