package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/clipvote/internal/apperror"
	"github.com/abdul-hamid-achik/clipvote/internal/db"
	"github.com/abdul-hamid-achik/clipvote/internal/ingest"
	"github.com/abdul-hamid-achik/clipvote/internal/queue"
	"github.com/abdul-hamid-achik/clipvote/internal/storage"
)

type fixture struct {
	store  *db.MemoryStore
	files  *storage.MemoryStorage
	broker *queue.MemoryBroker
	opens  int
}

func newFixture() *fixture {
	return &fixture{
		store:  db.NewMemoryStore(),
		files:  storage.NewMemoryStorage(),
		broker: queue.NewMemoryBroker(),
	}
}

func (f *fixture) open(ctx context.Context) (*env, error) {
	f.opens++
	return &env{
		store:   f.store,
		files:   f.files,
		broker:  f.broker,
		service: ingest.NewService(f.store, f.files, f.broker, 1<<20),
	}, nil
}

func (f *fixture) run(args ...string) (string, error) {
	cmd := newRootCmd(f.open)
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func (f *fixture) seed(status db.VideoStatus) db.Video {
	v, err := f.store.CreateVideo(context.Background(), db.CreateVideoParams{
		VideoID:      "vid-1",
		Title:        "clip",
		OriginalPath: "file://uploads/vid-1_original.mp4",
		UserID:       7,
	})
	if err != nil {
		panic(err)
	}
	v.Status = status
	f.store.Put(v)
	f.files.Seed(v.OriginalPath, []byte("original"))
	return v
}

func writeClip(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x42}, 1024), 0o644))
	return path
}

func TestRootCommand_Help(t *testing.T) {
	out, err := newFixture().run("--help")
	require.NoError(t, err)

	assert.Contains(t, out, "clipctl")
	for _, sub := range []string{"ingest", "enqueue", "status", "resubmit", "delete", "migrate", "assets"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_HelpDoesNotConnect(t *testing.T) {
	f := newFixture()
	_, err := f.run("status", "--help")
	require.NoError(t, err)
	assert.Equal(t, 0, f.opens)
}

func TestIngest(t *testing.T) {
	f := newFixture()
	path := writeClip(t, "finals.mp4")

	out, err := f.run("ingest", path, "--owner", "7", "--json")
	require.NoError(t, err)

	var got db.Video
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, db.VideoStatusUploaded, got.Status)
	assert.Equal(t, "finals", got.Title)
	assert.Equal(t, int64(7), got.UserID)
	require.NotNil(t, got.TaskID)

	pending := f.broker.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, got.ID, pending[0].Dispatch.VideoID)
	assert.Equal(t, 1, pending[0].Dispatch.Attempt)
	assert.Equal(t, 1, f.files.Count())
}

func TestIngest_Title(t *testing.T) {
	f := newFixture()
	path := writeClip(t, "raw.mov")

	out, err := f.run("ingest", path, "--owner", "7", "--title", "Game winner")
	require.NoError(t, err)
	assert.Contains(t, out, "dispatched")

	v, err := f.store.GetVideo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Game winner", v.Title)
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name string
		file string
		args []string
		want *apperror.Error
	}{
		{"unsupported extension", "clip.avi", nil, apperror.ErrUnsupportedExtension},
		{"non video content type", "clip.mp4", []string{"--content-type", "image/png"}, apperror.ErrInvalidFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			path := writeClip(t, tt.file)

			_, err := f.run(append([]string{"ingest", path, "--owner", "7", "--quiet"}, tt.args...)...)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, tt.want), "got %v", err)
			assert.Equal(t, 0, f.broker.Len())
			assert.Equal(t, 0, f.files.Count())
		})
	}
}

func TestIngest_RequiresOwner(t *testing.T) {
	f := newFixture()
	_, err := f.run("ingest", writeClip(t, "clip.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestIngest_MissingFile(t *testing.T) {
	f := newFixture()
	_, err := f.run("ingest", filepath.Join(t.TempDir(), "nope.mp4"), "--owner", "1")
	require.Error(t, err)
	assert.Equal(t, 0, f.opens)
}

func TestEnqueue(t *testing.T) {
	f := newFixture()
	v := f.seed(db.VideoStatusUploaded)

	_, err := f.run("enqueue", "1", "--quiet")
	require.NoError(t, err)

	pending := f.broker.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, v.ID, pending[0].Dispatch.VideoID)
	assert.Equal(t, v.OriginalPath, pending[0].Dispatch.OriginalLocation)
}

func TestEnqueue_InvalidID(t *testing.T) {
	for _, arg := range []string{"abc", "0", "-3"} {
		f := newFixture()
		_, err := f.run("enqueue", arg)
		require.Error(t, err, arg)
		assert.Equal(t, 0, f.broker.Len())
	}
}

func TestEnqueue_NotFound(t *testing.T) {
	_, err := newFixture().run("enqueue", "99")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrNotFound))
}

func TestStatus(t *testing.T) {
	f := newFixture()
	f.seed(db.VideoStatusProcessing)

	for _, arg := range []string{"1", "vid-1"} {
		out, err := f.run("status", arg, "--json")
		require.NoError(t, err)

		var got db.Video
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, db.VideoStatusProcessing, got.Status)
	}
}

func TestStatus_Text(t *testing.T) {
	f := newFixture()
	v := f.seed(db.VideoStatusFailed)
	msg := "ffmpeg failed"
	v.LastError = &msg
	f.store.Put(v)

	out, err := f.run("status", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "ffmpeg failed")
}

func TestStatus_NotFound(t *testing.T) {
	_, err := newFixture().run("status", "missing-video")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrNotFound))
}

func TestStatus_WatchUntilDone(t *testing.T) {
	f := newFixture()
	v := f.seed(db.VideoStatusProcessing)

	go func() {
		time.Sleep(30 * time.Millisecond)
		processed := "file://processed/vid-1_processed.mp4"
		v.Status = db.VideoStatusDone
		v.ProcessedPath = &processed
		f.store.Put(v)
	}()

	out, err := f.run("status", "1", "--watch", "--interval", "5ms", "--timeout", "5s", "--json")
	require.NoError(t, err)

	var got db.Video
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, db.VideoStatusDone, got.Status)
}

func TestStatus_WatchTimeout(t *testing.T) {
	f := newFixture()
	f.seed(db.VideoStatusProcessing)

	_, err := f.run("status", "1", "--watch", "--interval", "5ms", "--timeout", "30ms", "--quiet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestList(t *testing.T) {
	f := newFixture()
	msg := "ffmpeg failed"
	for id, status := range map[int64]db.VideoStatus{
		1: db.VideoStatusFailed,
		2: db.VideoStatusDone,
		3: db.VideoStatusFailed,
	} {
		v := db.Video{ID: id, VideoID: fmt.Sprintf("vid-%d", id), Status: status, OriginalPath: "file://uploads/x.mp4"}
		if status == db.VideoStatusFailed {
			v.LastError = &msg
		}
		f.store.Put(v)
	}

	out, err := f.run("list", "--status", "failed", "--json")
	require.NoError(t, err)
	var got []db.Video
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID, "newest first")
	assert.Equal(t, int64(1), got[1].ID)

	out, err = f.run("list", "--status", "failed", "--limit", "1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "VIDEO_ID")
	assert.Contains(t, lines[1], "vid-3")
	assert.Contains(t, lines[1], "ffmpeg failed")
	assert.NotContains(t, out, "vid-2")
}

func TestList_Empty(t *testing.T) {
	out, err := newFixture().run("list", "--status", "processing", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestList_InvalidArgs(t *testing.T) {
	f := newFixture()
	for _, args := range [][]string{
		{"list", "--status", "stuck"},
		{"list", "--limit", "0"},
	} {
		_, err := f.run(args...)
		assert.Error(t, err, args)
	}
	assert.Zero(t, f.opens, "invalid flags must fail before connecting")
}

func TestResubmit(t *testing.T) {
	f := newFixture()
	f.seed(db.VideoStatusFailed)

	_, err := f.run("resubmit", "1", "--quiet")
	require.NoError(t, err)

	v, err := f.store.GetVideo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, db.VideoStatusUploaded, v.Status)
	assert.Equal(t, 1, f.broker.Len())
}

func TestResubmit_NotFailed(t *testing.T) {
	f := newFixture()
	f.seed(db.VideoStatusDone)

	_, err := f.run("resubmit", "1")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrNotResubmittable))
	assert.Equal(t, 0, f.broker.Len())
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name    string
		status  db.VideoStatus
		owner   string
		want    *apperror.Error
		deleted bool
	}{
		{"owner deletes", db.VideoStatusDone, "7", nil, true},
		{"other owner", db.VideoStatusDone, "8", apperror.ErrForbidden, false},
		{"processing", db.VideoStatusProcessing, "7", apperror.ErrVideoBusy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			v := f.seed(tt.status)

			_, err := f.run("delete", v.VideoID, "--owner", tt.owner, "--quiet")
			if tt.want != nil {
				require.Error(t, err)
				assert.True(t, apperror.Is(err, tt.want), "got %v", err)
			} else {
				require.NoError(t, err)
			}

			_, gerr := f.store.GetVideo(context.Background(), v.ID)
			assert.Equal(t, tt.deleted, db.IsNotFound(gerr))
			_, stored := f.files.GetData(v.OriginalPath)
			assert.Equal(t, !tt.deleted, stored)
		})
	}
}

func TestAssets(t *testing.T) {
	f := newFixture()
	dir := t.TempDir()

	out, err := f.run("assets", "--dir", dir, "--json")
	require.NoError(t, err)

	var got struct {
		Dir     string   `json:"dir"`
		Written []string `json:"written"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got.Written, 2)
	for _, p := range got.Written {
		assert.FileExists(t, p)
	}
	assert.Equal(t, 0, f.opens)

	out, err = f.run("assets", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "already present")
}

func TestOpenerErrorIsReturned(t *testing.T) {
	boom := errors.New("database unreachable")
	cmd := newRootCmd(func(context.Context) (*env, error) { return nil, boom })
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"status", "1"})

	err := cmd.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDetailed(t *testing.T) {
	cause := errors.New("extension \".avi\"")
	err := detailed(apperror.Wrap(cause, apperror.ErrUnsupportedExtension))

	assert.ErrorIs(t, err, cause)
	assert.True(t, strings.HasPrefix(err.Error(), apperror.ErrUnsupportedExtension.Message))
	assert.Nil(t, detailed(nil))
}

func TestErrorBody(t *testing.T) {
	body := errorBody(apperror.Wrap(errors.New("status done"), apperror.ErrNotResubmittable))
	assert.Equal(t, "not_resubmittable", body["code"])
	assert.Equal(t, apperror.ErrNotResubmittable.Message, body["message"])
	assert.Equal(t, apperror.ErrNotResubmittable.StatusCode, body["status"])
	assert.Contains(t, body["detail"], "status done")

	body = errorBody(errors.New("dial tcp: refused"))
	assert.Equal(t, "internal_error", body["code"])
	assert.Equal(t, "dial tcp: refused", body["detail"])
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.mp4":  "video/mp4",
		"a.MOV":  "video/quicktime",
		"a.mkv":  "video/x-matroska",
		"a.webm": "video/webm",
	}
	for path, want := range tests {
		assert.Equal(t, want, contentTypeFor(path), path)
	}
}
