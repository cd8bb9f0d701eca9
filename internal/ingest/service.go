package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/clipvote/internal/apperror"
	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/logger"
	"github.com/abdul-hamid-achik/clipvote/internal/metrics"
	"github.com/abdul-hamid-achik/clipvote/internal/queue"
	"github.com/abdul-hamid-achik/clipvote/internal/storage"
	"github.com/abdul-hamid-achik/clipvote/internal/tracing"
)

var allowedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// Upload is one incoming video.
type Upload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Title       string
	OwnerID     int64
}

// Service is the boundary that creates videos and hands them to the
// workers. Input is rejected before any row exists.
type Service struct {
	store   db.Store
	storage storage.Port
	broker  queue.Broker
	maxSize int64
	newID   func() string
}

func NewService(store db.Store, port storage.Port, broker queue.Broker, maxUploadSize int64) *Service {
	return &Service{
		store:   store,
		storage: port,
		broker:  broker,
		maxSize: maxUploadSize,
		newID:   func() string { return uuid.NewString() },
	}
}

// Submit stores the upload, creates its row in uploaded and dispatches it.
// When only the dispatch fails the created video is returned together with
// the error; it can be dispatched again with Enqueue.
func (s *Service) Submit(ctx context.Context, u Upload) (db.Video, error) {
	log := logger.FromContext(ctx).With("filename", u.Filename, "owner_id", u.OwnerID)

	if !strings.HasPrefix(strings.ToLower(u.ContentType), "video/") {
		metrics.RecordUpload("rejected")
		return db.Video{}, apperror.Wrap(fmt.Errorf("content type %q", u.ContentType), apperror.ErrInvalidFileType)
	}
	ext := strings.ToLower(filepath.Ext(u.Filename))
	if !allowedExtensions[ext] {
		metrics.RecordUpload("rejected")
		return db.Video{}, apperror.Wrap(fmt.Errorf("extension %q", ext), apperror.ErrUnsupportedExtension)
	}

	videoID := s.newID()
	location, err := s.storage.Save(ctx, u.Reader, videoID+"_original"+ext, s.maxSize)
	if err != nil {
		if errors.Is(err, storage.ErrSizeExceeded) {
			metrics.RecordUpload("too_large")
			log.Warn("upload exceeds size limit", "max_size", s.maxSize)
			return db.Video{}, apperror.Wrap(err, apperror.ErrFileTooLarge)
		}
		metrics.RecordUpload("error")
		return db.Video{}, apperror.Wrap(fmt.Errorf("save original: %w", err), apperror.ErrInternal)
	}

	title := strings.TrimSpace(u.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(u.Filename), filepath.Ext(u.Filename))
	}

	video, err := s.store.CreateVideo(ctx, db.CreateVideoParams{
		VideoID:      videoID,
		Title:        title,
		OriginalPath: location,
		UserID:       u.OwnerID,
	})
	if err != nil {
		s.deleteBestEffort(ctx, location)
		metrics.RecordUpload("error")
		return db.Video{}, apperror.Wrap(fmt.Errorf("create video: %w", err), apperror.ErrInternal)
	}
	metrics.RecordUpload("accepted")
	log = log.With("job_id", video.ID, "video_id", video.VideoID)

	token, err := s.dispatch(ctx, video)
	if err != nil {
		log.Error("failed to dispatch video", "error", err)
		return video, apperror.Wrap(err, apperror.ErrServiceUnavailable)
	}
	video.TaskID = &token

	log.Info("video submitted", "location", location, "task_token", token)
	return video, nil
}

// Enqueue dispatches an existing video again and returns the task token.
// The claim protocol makes extra dispatches of a claimed video no-ops.
func (s *Service) Enqueue(ctx context.Context, id int64) (string, error) {
	video, err := s.store.GetVideo(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return "", apperror.Wrap(err, apperror.ErrNotFound)
		}
		return "", fmt.Errorf("load video: %w", err)
	}
	return s.dispatch(ctx, video)
}

// Resubmit moves a failed video back to uploaded and dispatches it.
func (s *Service) Resubmit(ctx context.Context, id int64) (db.Video, error) {
	n, err := s.store.ResetFailedVideo(ctx, id)
	if err != nil {
		return db.Video{}, fmt.Errorf("reset video: %w", err)
	}

	video, err := s.store.GetVideo(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return db.Video{}, apperror.Wrap(err, apperror.ErrNotFound)
		}
		return db.Video{}, fmt.Errorf("load video: %w", err)
	}
	if n == 0 {
		return video, apperror.Wrap(fmt.Errorf("status %s", video.Status), apperror.ErrNotResubmittable)
	}

	token, err := s.dispatch(ctx, video)
	if err != nil {
		return video, apperror.Wrap(err, apperror.ErrServiceUnavailable)
	}
	video.TaskID = &token

	logger.FromContext(ctx).Info("video resubmitted", "job_id", video.ID, "task_token", token)
	return video, nil
}

// Delete removes a video owned by ownerID together with its stored files.
// Public videos and videos being processed are kept.
func (s *Service) Delete(ctx context.Context, videoID string, ownerID int64) error {
	log := logger.FromContext(ctx).With("video_id", videoID, "owner_id", ownerID)

	video, err := s.store.GetVideoByVideoID(ctx, videoID)
	if err != nil {
		if db.IsNotFound(err) {
			return apperror.Wrap(err, apperror.ErrNotFound)
		}
		return fmt.Errorf("load video: %w", err)
	}
	if video.UserID != ownerID {
		return apperror.ErrForbidden
	}
	if video.IsPublic {
		return apperror.ErrVideoPublic
	}
	if video.Status == db.VideoStatusProcessing {
		return apperror.ErrVideoBusy
	}

	n, err := s.store.DeleteVideo(ctx, video.ID)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n == 0 {
		return apperror.ErrVideoBusy
	}

	s.deleteBestEffort(ctx, video.OriginalPath)
	if video.ProcessedPath != nil {
		s.deleteBestEffort(ctx, *video.ProcessedPath)
	}

	log.Info("video deleted", "job_id", video.ID)
	return nil
}

func (s *Service) dispatch(ctx context.Context, video db.Video) (string, error) {
	ctx, span := tracing.StartEnqueueSpan(ctx, video.ID, 1)

	token := s.newID()
	d := queue.Dispatch{
		VideoID:          video.ID,
		OriginalLocation: video.OriginalPath,
		Attempt:          1,
		TaskToken:        token,
		Trace:            tracing.InjectTraceContext(ctx),
	}
	if _, err := s.broker.Enqueue(ctx, d, 0); err != nil {
		err = fmt.Errorf("enqueue dispatch: %w", err)
		tracing.EndSpan(span, err)
		return "", err
	}
	tracing.EndSpan(span, nil)

	if err := s.store.SetTaskID(ctx, db.SetTaskIDParams{ID: video.ID, TaskID: &token}); err != nil {
		logger.FromContext(ctx).Warn("failed to record task id", "job_id", video.ID, "error", err)
	}
	return token, nil
}

func (s *Service) deleteBestEffort(ctx context.Context, location string) {
	if err := s.storage.Delete(ctx, location); err != nil {
		logger.FromContext(ctx).Warn("failed to delete stored file", "location", location, "error", err)
	}
}
