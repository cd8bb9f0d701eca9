package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/clipvote/internal/db"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.connect(ctx)
			if err != nil {
				return err
			}
			if e.pool == nil {
				return errors.New("migrate requires a database connection")
			}

			if err := db.Migrate(ctx, e.pool); err != nil {
				return err
			}
			v, err := db.MigrationVersion(ctx, e.pool)
			if err != nil {
				return err
			}

			if c.printer.IsJSON() {
				return c.printer.JSON(map[string]int64{"version": v})
			}
			c.printer.Success("Database at migration version %d", v)
			return nil
		},
	}
}
