package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/clipvote/internal/processor"
	"github.com/abdul-hamid-achik/clipvote/internal/storage"
)

const (
	original = "s3://memory/uploads/abc_original.mp4"
	claim    = "c0ffee12-3b7e-4d2a-9c1f-5e8a7b6d4c3b"
)

type recorder struct {
	ran  []string
	dirs []string
}

// appendStep copies in to out and appends its own name, so the final file
// shows the order steps ran in.
func (r *recorder) appendStep(name string, fail error) processor.Step {
	return processor.NewStep(name, func(ctx context.Context, in, out string) error {
		r.ran = append(r.ran, name)
		r.dirs = append(r.dirs, filepath.Dir(out))
		if fail != nil {
			return fail
		}
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		return os.WriteFile(out, append(data, []byte("|"+name)...), 0o644)
	})
}

func newRegistry(r *recorder, failing string, fail error) *processor.Registry {
	reg := processor.NewRegistry()
	for _, name := range processor.PipelineOrder {
		var err error
		if name == failing {
			err = fail
		}
		reg.Register(r.appendStep(name, err))
	}
	return reg
}

func TestExecutorRun(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.Seed(original, []byte("src"))
	rec := &recorder{}
	workDir := t.TempDir()

	e, err := NewExecutor(store, newRegistry(rec, "", nil), Config{WorkDir: workDir})
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}

	loc, err := e.Run(context.Background(), 7, claim, original)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if want := "s3://memory/processed/7_c0ffee12_processed.mp4"; loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}
	data, ok := store.GetData(loc)
	if !ok {
		t.Fatal("processed file not stored")
	}
	if want := "src|trim|scale|mute|watermark|compose"; string(data) != want {
		t.Errorf("processed data = %q, want %q", data, want)
	}

	for _, d := range rec.dirs {
		if !strings.HasPrefix(filepath.Base(d), "video-7-") {
			t.Errorf("step ran outside the run dir: %s", d)
		}
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned up: %d entries left", len(entries))
	}
}

func TestExecutorRun_StepFailureAborts(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.Seed(original, []byte("src"))
	rec := &recorder{}
	boom := errors.New("encoder crashed")
	workDir := t.TempDir()

	e, err := NewExecutor(store, newRegistry(rec, processor.StepMute, boom), Config{WorkDir: workDir})
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Run(context.Background(), 7, claim, original)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if got := strings.Join(rec.ran, ","); got != "trim,scale,mute" {
		t.Errorf("ran = %s, want trim,scale,mute", got)
	}
	if _, ok := store.GetData("s3://memory/processed/7_c0ffee12_processed.mp4"); ok {
		t.Error("nothing should be stored when a step fails")
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Errorf("work dir not cleaned up after failure: %d entries left", len(entries))
	}
}

func TestExecutorRun_StepWithoutOutput(t *testing.T) {
	store := storage.NewMemoryStorage()
	store.Seed(original, []byte("src"))

	reg := newRegistry(&recorder{}, "", nil)
	reg.Register(processor.NewStep(processor.StepScale, func(ctx context.Context, in, out string) error {
		return nil
	}))

	e, err := NewExecutor(store, reg, Config{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background(), 1, claim, original); !errors.Is(err, processor.ErrStepFailed) {
		t.Errorf("error = %v, want ErrStepFailed", err)
	}
}

func TestExecutorRun_FetchError(t *testing.T) {
	store := storage.NewMemoryStorage()
	rec := &recorder{}

	e, err := NewExecutor(store, newRegistry(rec, "", nil), Config{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Run(context.Background(), 1, claim, original)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want storage.ErrNotFound", err)
	}
	if len(rec.ran) != 0 {
		t.Errorf("no step should run, ran %v", rec.ran)
	}
}

func TestExecutorRun_LocalStorage(t *testing.T) {
	base := t.TempDir()
	local, err := storage.NewLocalStorage(filepath.Join(base, "uploads"), filepath.Join(base, "processed"))
	if err != nil {
		t.Fatal(err)
	}
	src, err := local.Save(context.Background(), bytes.NewReader([]byte("src")), "x_original.mp4", 1024)
	if err != nil {
		t.Fatal(err)
	}

	e, err := NewExecutor(local, newRegistry(&recorder{}, "", nil), Config{WorkDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	loc, err := e.Run(context.Background(), 3, claim, src)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if want := filepath.Join(base, "processed", "3_c0ffee12_processed.mp4"); loc != want {
		t.Errorf("location = %q, want %q", loc, want)
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("original must be left in place by the executor: %v", err)
	}
}

func TestExecutorAssets(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "watermark.png")
	if err := os.WriteFile(present, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := storage.NewMemoryStorage()
	store.Seed(original, []byte("src"))
	rec := &recorder{}

	e, err := NewExecutor(store, newRegistry(rec, "", nil), Config{
		WorkDir: t.TempDir(),
		Assets:  []string{present, filepath.Join(dir, "intro-outro.jpg")},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Run(context.Background(), 1, claim, original)
	if !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("error = %v, want ErrAssetMissing", err)
	}
	if len(rec.ran) != 0 {
		t.Errorf("no step should run without assets, ran %v", rec.ran)
	}
}

func TestNewExecutor_MissingStep(t *testing.T) {
	reg := processor.NewRegistry()
	reg.Register(processor.NewStep(processor.StepTrim, func(ctx context.Context, in, out string) error { return nil }))

	_, err := NewExecutor(storage.NewMemoryStorage(), reg, Config{})
	if !errors.Is(err, processor.ErrStepNotRegistered) {
		t.Errorf("error = %v, want ErrStepNotRegistered", err)
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		id    int64
		claim string
		want  string
	}{
		{42, claim, "42_c0ffee12_processed.mp4"},
		{42, "ab12", "42_ab12_processed.mp4"},
		{42, "", "42_processed.mp4"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.id, tt.claim); got != tt.want {
			t.Errorf("OutputName(%d, %q) = %q, want %q", tt.id, tt.claim, got, tt.want)
		}
	}

	if OutputName(42, "aaaaaaaa-1") == OutputName(42, "bbbbbbbb-1") {
		t.Error("different claims must get different output names")
	}
}
