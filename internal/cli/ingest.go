package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/clipvote/internal/apperror"
	"github.com/abdul-hamid-achik/clipvote/internal/cli/output"
	"github.com/abdul-hamid-achik/clipvote/internal/ingest"
)

var videoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoContentTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		title       string
		owner       int64
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a video and dispatch it for processing",
		Long: `Upload a local video file, create its record and dispatch it to the workers.

Examples:
  clipctl ingest clip.mp4 --owner 1
  clipctl ingest clip.mov --owner 1 --title "Finals highlight"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ctx := cmd.Context()

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()

			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}

			e, err := c.connect(ctx)
			if err != nil {
				return err
			}

			if contentType == "" {
				contentType = contentTypeFor(path)
			}

			progress := output.NewByteProgress(info.Size(), "Uploading", c.printer.IsQuiet() || c.printer.IsJSON())
			video, err := e.service.Submit(ctx, ingest.Upload{
				Reader:      progress.Reader(f),
				Filename:    filepath.Base(path),
				ContentType: contentType,
				Title:       title,
				OwnerID:     owner,
			})
			progress.Finish()

			if err != nil && !apperror.Is(err, apperror.ErrServiceUnavailable) {
				return err
			}
			if c.printer.IsJSON() {
				if jerr := c.printer.JSON(video); jerr != nil {
					return jerr
				}
				return err
			}

			if err != nil {
				c.printer.Warn("Video %d stored but not dispatched; retry with 'clipctl enqueue %d'", video.ID, video.ID)
				return err
			}
			c.printer.Success("Video %d (%s) dispatched", video.ID, video.VideoID)
			c.printer.KeyValue("title", video.Title)
			c.printer.KeyValue("original", video.OriginalPath)
			if video.TaskID != nil {
				c.printer.KeyValue("task", *video.TaskID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Video title (default: file name)")
	cmd.Flags().Int64Var(&owner, "owner", 0, "Owning user id")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Override the detected content type")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
