package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/medkit/medinventory"
	"github.com/medkit/medinventory/pkg/models"
)

var (
	inventoryHeader = []string{"ID", "SUPPLY", "QUANTITY", "EXPIRES"}
	supplyHeader    = []string{"ID", "NAME", "TYPE", "STRENGTH", "LOCATION"}
	logHeader       = []string{"ID", "INVENTORY", "USER", "QUANTITY", "AT"}
)

func inventoryRow(inv models.Inventory) []string {
	supply := strconv.FormatInt(inv.SupplyID, 10)
	if inv.Supply != nil {
		supply = inv.Supply.Name
	}
	expires := "-"
	if inv.ExpiryDate != nil {
		expires = inv.ExpiryDate.Format("2006-01-02")
	}
	return []string{strconv.FormatInt(inv.ID, 10), supply, strconv.Itoa(inv.Quantity), expires}
}

func supplyRow(s models.Supply) []string {
	return []string{strconv.FormatInt(s.ID, 10), s.Name, s.Type, s.StrengthOrVolume, s.Location}
}

func logRow(l models.UsageLog) []string {
	at := "-"
	if l.CreatedAt != nil {
		at = l.CreatedAt.String()
	}
	return []string{strconv.FormatInt(l.ID, 10), strconv.FormatInt(l.InventoryID, 10), l.UserID.String(), strconv.Itoa(l.Quantity), at}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func (a *app) sessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show whether a user is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := a.db.SessionStatus(cmd.Context())
			if a.jsonOutput {
				return a.printJSON(st)
			}
			if !st.Authenticated {
				fmt.Fprintln(a.out, "not signed in")
				return nil
			}
			fmt.Fprintf(a.out, "signed in as %s %s\n", st.Identity, st.Email)
			return nil
		},
	}
}

func (a *app) inventoryCmd() *cobra.Command {
	var withSupply bool

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List stock by expiry",
	}
	cmd.PersistentFlags().BoolVar(&withSupply, "with-supply", false, "show supply names (REST connections only)")

	list := func(parts ...string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			table := medinventory.Inventory
			if withSupply {
				table = table.WithProjection("*", "supplies(name)")
			}
			st := medinventory.FetchExpirable(cmd.Context(), a.db, table, a.options())

			all := map[string]namedPartition{
				"active":  partitionOf("active", st.Active, inventoryHeader, inventoryRow),
				"expired": partitionOf("expired", st.Expired, inventoryHeader, inventoryRow),
				"undated": partitionOf("undated", st.Undated, inventoryHeader, inventoryRow),
			}
			shown := make([]namedPartition, 0, len(parts))
			for _, name := range parts {
				shown = append(shown, all[name])
			}
			return a.printState(st.State, shown...)
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "list", Short: "List every partition", Args: cobra.NoArgs, RunE: list("active", "expired", "undated")},
		&cobra.Command{Use: "expired", Short: "List expired stock", Args: cobra.NoArgs, RunE: list("expired")},
		&cobra.Command{Use: "undated", Short: "List stock without an expiry date", Args: cobra.NoArgs, RunE: list("undated")},
	)
	return cmd
}

func (a *app) suppliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supplies",
		Short: "Manage the supplies catalogue",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List supplies that are not deleted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st := medinventory.FetchPlain(cmd.Context(), a.db, medinventory.Supplies, a.options())
				return a.printState(st.State, partitionOf("active", st.Active, supplyHeader, supplyRow))
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Flag a supply as deleted",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := a.db.SoftDelete(cmd.Context(), medinventory.Supplies, id); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "supply %d deleted\n", id)
				return nil
			},
		},
	)
	return cmd
}

func (a *app) logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List usage logs",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every usage log",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st := medinventory.FetchOwned(cmd.Context(), a.db, medinventory.Logs, a.options())
				return a.printState(st.State, partitionOf("active", st.Active, logHeader, logRow))
			},
		},
		&cobra.Command{
			Use:   "mine",
			Short: "List the usage logs of the signed in user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st := medinventory.FetchOwned(cmd.Context(), a.db, medinventory.Logs, a.options())
				return a.printState(st.State, partitionOf("personal", st.Personal, logHeader, logRow))
			},
		},
	)
	return cmd
}

func (a *app) stockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Change stock levels",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "take <inventory-id> <quantity>",
		Short: "Take a quantity out of an inventory row and log it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty < 1 {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			if err := a.db.AdjustStock(cmd.Context(), id, -qty); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "took %d from inventory %d\n", qty, id)
			return nil
		},
	})
	return cmd
}

func (a *app) rowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "row",
		Short: "Read single rows",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <table> <id>",
		Short: "Print one row as JSON, deleted or not",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}

			var row any
			switch args[0] {
			case medinventory.Supplies.Name():
				row, err = nilIfAbsent(medinventory.FetchRow(cmd.Context(), a.db, medinventory.Supplies, id))
			case medinventory.Inventory.Name():
				row, err = nilIfAbsent(medinventory.FetchRow(cmd.Context(), a.db, medinventory.Inventory, id))
			case medinventory.Logs.Name():
				row, err = nilIfAbsent(medinventory.FetchRow(cmd.Context(), a.db, medinventory.Logs, id))
			case medinventory.Crew.Name():
				row, err = nilIfAbsent(medinventory.FetchRow(cmd.Context(), a.db, medinventory.Crew, id))
			default:
				return fmt.Errorf("unknown table %q", args[0])
			}
			if err != nil {
				return err
			}
			return a.printJSON(row)
		},
	})
	return cmd
}

// nilIfAbsent turns a typed nil row into an untyped nil so it prints as null.
func nilIfAbsent[T any](row *T, err error) (any, error) {
	if row == nil {
		return nil, err
	}
	return row, err
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables and the adjust_stock function (Postgres connections only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "schema is up to date")
			return nil
		},
	}
}
