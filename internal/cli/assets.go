package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/clipvote/internal/assets"
)

func (c *cli) assetsCmd() *cobra.Command {
	opts := assets.DefaultOptions()
	var dir string

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Render the default watermark and title card",
		Long: `Render the watermark PNG and the intro/outro title card JPEG the pipeline
expects in the assets directory. Existing files are kept unless --overwrite is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := assets.EnsureDefaults(dir, opts)
			if err != nil {
				return err
			}

			if c.printer.IsJSON() {
				return c.printer.JSON(map[string]interface{}{"dir": dir, "written": written})
			}
			if len(written) == 0 {
				c.printer.Info("Assets already present in %s", dir)
				return nil
			}
			for _, p := range written {
				c.printer.Success("Wrote %s", p)
			}
			return nil
		},
	}

	defaultDir := os.Getenv("ASSETS_DIR")
	if defaultDir == "" {
		defaultDir = "assets"
	}
	cmd.Flags().StringVar(&dir, "dir", defaultDir, "Assets directory")
	cmd.Flags().StringVar(&opts.Text, "text", opts.Text, "Text drawn on the watermark and title card")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "Replace existing files")
	cmd.Flags().IntVar(&opts.CardWidth, "width", opts.CardWidth, "Title card width")
	cmd.Flags().IntVar(&opts.CardHeight, "height", opts.CardHeight, "Title card height")

	return cmd
}
