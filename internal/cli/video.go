package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/clipvote/internal/apperror"
	"github.com/abdul-hamid-achik/clipvote/internal/cli/output"
	"github.com/abdul-hamid-achik/clipvote/internal/db"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid video id %q", arg)
	}
	return id, nil
}

// lookup accepts either the numeric id or the public video id.
func lookup(ctx context.Context, store db.Querier, arg string) (db.Video, error) {
	var (
		video db.Video
		err   error
	)
	if id, perr := strconv.ParseInt(arg, 10, 64); perr == nil {
		video, err = store.GetVideo(ctx, id)
	} else {
		video, err = store.GetVideoByVideoID(ctx, arg)
	}
	if err != nil {
		if db.IsNotFound(err) {
			return db.Video{}, apperror.Wrap(fmt.Errorf("video %s", arg), apperror.ErrNotFound)
		}
		return db.Video{}, err
	}
	return video, nil
}

func isTerminal(status db.VideoStatus) bool {
	return status == db.VideoStatusDone || status == db.VideoStatusFailed
}

func (c *cli) enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <id>",
		Short: "Dispatch an existing video again",
		Long: `Send another processing dispatch for a video. Extra dispatches of a video
that is already claimed or finished are ignored by the workers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}

			token, err := e.service.Enqueue(cmd.Context(), id)
			if err != nil {
				return err
			}

			if c.printer.IsJSON() {
				return c.printer.JSON(map[string]interface{}{"id": id, "task_id": token})
			}
			c.printer.Success("Video %d dispatched (task %s)", id, token)
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status <id|video-id>",
		Short: "Show a video's processing status",
		Long: `Show the processing status of a video.

Examples:
  clipctl status 42
  clipctl status 42 --watch              # Poll until done or failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.connect(ctx)
			if err != nil {
				return err
			}

			video, err := lookup(ctx, e.store, args[0])
			if err != nil {
				return err
			}

			if watch && !isTerminal(video.Status) {
				video, err = c.watch(ctx, e.store, video, interval, timeout)
				if err != nil {
					return err
				}
			}

			c.printVideo(video)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the video is done or failed")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Poll interval for --watch")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Give up watching after this long")

	return cmd
}

func (c *cli) watch(ctx context.Context, store db.Querier, video db.Video, interval, timeout time.Duration) (db.Video, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	spinner := output.NewSpinner(fmt.Sprintf("video %d: %s", video.ID, video.Status), c.printer.IsQuiet() || c.printer.IsJSON())
	defer spinner.Finish()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return video, fmt.Errorf("video %d still %s: %w", video.ID, video.Status, ctx.Err())
		case <-ticker.C:
		}

		current, err := store.GetVideo(ctx, video.ID)
		if err != nil {
			return video, fmt.Errorf("poll video %d: %w", video.ID, err)
		}
		video = current
		spinner.Update(fmt.Sprintf("video %d: %s (attempt %d)", video.ID, video.Status, video.Attempts))
		if isTerminal(video.Status) {
			return video, nil
		}
	}
}

func (c *cli) printVideo(v db.Video) {
	if c.printer.IsJSON() {
		_ = c.printer.JSON(v)
		return
	}

	c.printer.Header(fmt.Sprintf("Video %d", v.ID))
	c.printer.KeyValue("video_id", v.VideoID)
	c.printer.KeyValue("title", v.Title)
	c.printer.KeyValue("status", output.Status(string(v.Status)))
	c.printer.KeyValue("attempts", strconv.Itoa(int(v.Attempts)))
	c.printer.KeyValue("original", v.OriginalPath)
	if v.ProcessedPath != nil {
		c.printer.KeyValue("processed", *v.ProcessedPath)
	}
	if v.TaskID != nil {
		c.printer.KeyValue("task", *v.TaskID)
	}
	if v.LastError != nil {
		c.printer.KeyValue("last_error", *v.LastError)
	}
	if v.UpdatedAt.Valid {
		c.printer.KeyValue("updated", v.UpdatedAt.Time.Format(time.RFC3339))
	}
}

var listStatuses = []db.VideoStatus{
	db.VideoStatusUploaded,
	db.VideoStatusProcessing,
	db.VideoStatusDone,
	db.VideoStatusFailed,
}

func parseStatus(s string) (db.VideoStatus, error) {
	for _, st := range listStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q: want uploaded, processing, done or failed", s)
}

func (c *cli) listCmd() *cobra.Command {
	var (
		status string
		limit  int32
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List videos in one status, newest first",
		Long: `List videos in one status, newest first.

Examples:
  clipctl list --status failed             # Candidates for resubmit
  clipctl list --status processing --limit 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStatus(status)
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fmt.Errorf("invalid limit %d", limit)
			}
			e, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}

			videos, err := e.store.ListVideosByStatus(cmd.Context(), db.ListVideosByStatusParams{Status: st, Limit: limit})
			if err != nil {
				return fmt.Errorf("list %s videos: %w", st, err)
			}

			if c.printer.IsJSON() {
				if videos == nil {
					videos = []db.Video{}
				}
				return c.printer.JSON(videos)
			}
			if len(videos) == 0 {
				c.printer.Info("No %s videos", st)
				return nil
			}

			table := c.printer.Table("id", "video_id", "status", "attempts", "updated", "last_error")
			for _, v := range videos {
				updated := ""
				if v.UpdatedAt.Valid {
					updated = v.UpdatedAt.Time.Format(time.RFC3339)
				}
				lastError := ""
				if v.LastError != nil {
					lastError = *v.LastError
				}
				table.AddRow(
					strconv.FormatInt(v.ID, 10),
					v.VideoID,
					output.Status(string(v.Status)),
					strconv.Itoa(int(v.Attempts)),
					updated,
					lastError,
				)
			}
			return table.Render()
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", string(db.VideoStatusFailed), "Status to list: uploaded, processing, done or failed")
	cmd.Flags().Int32Var(&limit, "limit", 20, "Maximum number of videos")

	return cmd
}

func (c *cli) resubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resubmit <id>",
		Short: "Move a failed video back to uploaded and dispatch it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}

			video, err := e.service.Resubmit(cmd.Context(), id)
			if err != nil {
				if apperror.Is(err, apperror.ErrNotResubmittable) {
					c.printer.Error("Video %d is %s; only failed videos can be resubmitted", id, video.Status)
				}
				return err
			}

			if c.printer.IsJSON() {
				return c.printer.JSON(video)
			}
			c.printer.Success("Video %d resubmitted", id)
			return nil
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	var owner int64

	cmd := &cobra.Command{
		Use:   "delete <video-id>",
		Short: "Delete a video and its stored files",
		Long: `Delete a video owned by --owner. Public videos and videos being processed
are refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}

			if err := e.service.Delete(cmd.Context(), args[0], owner); err != nil {
				return err
			}

			if c.printer.IsJSON() {
				return c.printer.JSON(map[string]interface{}{"video_id": args[0], "deleted": true})
			}
			c.printer.Success("Video %s deleted", args[0])
			return nil
		},
	}

	cmd.Flags().Int64Var(&owner, "owner", 0, "Owning user id")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
