package db

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *PoolStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	return NewStore(pool)
}

func createTestVideo(t *testing.T, s *PoolStore) Video {
	t.Helper()
	v, err := s.CreateVideo(context.Background(), CreateVideoParams{
		VideoID:      uuid.NewString(),
		Title:        "test clip",
		OriginalPath: "/tmp/" + uuid.NewString() + "_original.mp4",
		UserID:       1,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), "DELETE FROM videos WHERE id = $1", v.ID)
	})
	return v
}

func ptr(s string) *string { return &s }

func TestCreateVideo_Defaults(t *testing.T) {
	s := testStore(t)
	v := createTestVideo(t, s)

	assert.Equal(t, VideoStatusUploaded, v.Status)
	assert.Nil(t, v.ProcessedPath)
	assert.False(t, v.IsPublic)
	assert.Zero(t, v.Attempts)

	_, err := s.GetVideo(context.Background(), v.ID+1_000_000)
	assert.True(t, IsNotFound(err))
}

func TestClaimVideo_ExactlyOneWinner(t *testing.T) {
	s := testStore(t)
	v := createTestVideo(t, s)

	const contenders = 10
	var winners atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := s.ClaimVideo(context.Background(), ClaimVideoParams{ID: v.ID, ClaimToken: ptr(fmt.Sprintf("token-%d", i))})
			assert.NoError(t, err)
			winners.Add(n)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), winners.Load())

	got, err := s.GetVideo(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, VideoStatusProcessing, got.Status)
	assert.Equal(t, int32(1), got.Attempts)
}

func TestResumeClaim_OnlyOncePerAttempt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	v := createTestVideo(t, s)

	n, err := s.ClaimVideo(ctx, ClaimVideoParams{ID: v.ID, ClaimToken: ptr("lineage")})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.ResumeClaim(ctx, ResumeClaimParams{ID: v.ID, ClaimToken: ptr("other"), Attempts: 2})
	require.NoError(t, err)
	assert.Zero(t, n, "foreign token must not resume")

	n, err = s.ResumeClaim(ctx, ResumeClaimParams{ID: v.ID, ClaimToken: ptr("lineage"), Attempts: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.ResumeClaim(ctx, ResumeClaimParams{ID: v.ID, ClaimToken: ptr("lineage"), Attempts: 2})
	require.NoError(t, err)
	assert.Zero(t, n, "duplicate retry delivery must not resume twice")
}

func TestMarkVideoDone_RequiresClaim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	v := createTestVideo(t, s)

	n, err := s.MarkVideoDone(ctx, MarkVideoDoneParams{ID: v.ID, ClaimToken: ptr("t"), ProcessedPath: ptr("/out.mp4")})
	require.NoError(t, err)
	assert.Zero(t, n, "unclaimed row cannot complete")

	_, err = s.ClaimVideo(ctx, ClaimVideoParams{ID: v.ID, ClaimToken: ptr("t")})
	require.NoError(t, err)

	err = s.ExecTx(ctx, func(q Querier) error {
		n, err := q.MarkVideoDone(ctx, MarkVideoDoneParams{ID: v.ID, ClaimToken: ptr("t"), ProcessedPath: ptr("/out.mp4")})
		require.Equal(t, int64(1), n)
		return err
	})
	require.NoError(t, err)

	got, err := s.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, VideoStatusDone, got.Status)
	require.NotNil(t, got.ProcessedPath)
	assert.Equal(t, "/out.mp4", *got.ProcessedPath)

	n, err = s.MarkVideoFailed(ctx, MarkVideoFailedParams{ID: v.ID, LastError: ptr("late failure")})
	require.NoError(t, err)
	assert.Zero(t, n, "done is terminal")
}

func TestExecTx_RollsBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	v := createTestVideo(t, s)
	_, err := s.ClaimVideo(ctx, ClaimVideoParams{ID: v.ID, ClaimToken: ptr("t")})
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = s.ExecTx(ctx, func(q Querier) error {
		if _, err := q.MarkVideoDone(ctx, MarkVideoDoneParams{ID: v.ID, ClaimToken: ptr("t"), ProcessedPath: ptr("/out.mp4")}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, VideoStatusProcessing, got.Status)
	assert.Nil(t, got.ProcessedPath)
}

func TestDeleteAndReset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	v := createTestVideo(t, s)

	_, err := s.ClaimVideo(ctx, ClaimVideoParams{ID: v.ID, ClaimToken: ptr("t")})
	require.NoError(t, err)

	n, err := s.DeleteVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "processing rows are not deletable")

	_, err = s.MarkVideoFailed(ctx, MarkVideoFailedParams{ID: v.ID, LastError: ptr("ffmpeg exited 1")})
	require.NoError(t, err)

	n, err = s.ResetFailedVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, VideoStatusUploaded, got.Status)
	assert.Nil(t, got.ClaimToken)

	n, err = s.DeleteVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListStaleProcessing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	v := createTestVideo(t, s)
	_, err := s.ClaimVideo(ctx, ClaimVideoParams{ID: v.ID, ClaimToken: ptr("t")})
	require.NoError(t, err)

	stale, err := s.ListStaleProcessing(ctx, ListStaleProcessingParams{
		UpdatedAt: pgtype.Timestamptz{Time: time.Now().Add(time.Hour), Valid: true},
		Limit:     1000,
	})
	require.NoError(t, err)

	var found bool
	for _, sv := range stale {
		if sv.ID == v.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReapStaleVideo_RequiresStaleRow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	v := createTestVideo(t, s)
	_, err := s.ClaimVideo(ctx, ClaimVideoParams{ID: v.ID, ClaimToken: ptr("t")})
	require.NoError(t, err)

	past := pgtype.Timestamptz{Time: time.Now().Add(-time.Hour), Valid: true}
	n, err := s.ReapStaleVideo(ctx, ReapStaleVideoParams{ID: v.ID, LastError: ptr("stale"), UpdatedAt: past})
	require.NoError(t, err)
	assert.Zero(t, n, "a row updated after the cutoff is not stale")

	future := pgtype.Timestamptz{Time: time.Now().Add(time.Hour), Valid: true}
	n, err = s.ReapStaleVideo(ctx, ReapStaleVideoParams{ID: v.ID, LastError: ptr("stale"), UpdatedAt: future})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, VideoStatusFailed, got.Status)
}

func TestListVideosByStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := createTestVideo(t, s)
	b := createTestVideo(t, s)
	_, err := s.ClaimVideo(ctx, ClaimVideoParams{ID: b.ID, ClaimToken: ptr("t")})
	require.NoError(t, err)

	uploaded, err := s.ListVideosByStatus(ctx, ListVideosByStatusParams{Status: VideoStatusUploaded, Limit: 1000})
	require.NoError(t, err)

	ids := make(map[int64]bool)
	for _, v := range uploaded {
		assert.Equal(t, VideoStatusUploaded, v.Status)
		ids[v.ID] = true
	}
	assert.True(t, ids[a.ID])
	assert.False(t, ids[b.ID])
}
