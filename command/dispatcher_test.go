package command

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/time/rate"

	"github.com/moyoez/partyline-console/device"
	"github.com/moyoez/partyline-console/state"
)

type fakeDevice struct {
	mu    sync.Mutex
	posts []string
	fail  map[string]int
}

func (f *fakeDevice) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if r.Method == http.MethodPost {
		f.posts = append(f.posts, r.URL.Path)
	}
	status := f.fail[r.URL.Path]
	f.mu.Unlock()
	if status != 0 {
		http.Error(w, "boom", status)
		return
	}
	if r.URL.Path == device.PathDownloadMix {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = io.WriteString(w, "RIFFmixWAVE")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true}`)
}

func newDispatcher(t *testing.T, fd *fakeDevice) (*Dispatcher, *state.Store, *int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(fd.handler))
	t.Cleanup(srv.Close)
	client := device.New(srv.URL, device.WithHTTPClient(srv.Client()), device.WithDownloadClient(srv.Client()))
	store := state.New()
	refreshes := new(int)
	d := New(client, store,
		WithRefresher(func() { *refreshes++ }),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
	return d, store, refreshes
}

func TestStartTxRefreshesStatus(t *testing.T) {
	fd := &fakeDevice{}
	d, store, refreshes := newDispatcher(t, fd)
	store.ReportError("metrics", errors.New("stale"))

	if err := d.StartTx(context.Background()); err != nil {
		t.Fatalf("StartTx: %v", err)
	}
	if len(fd.posts) != 1 || fd.posts[0] != device.PathStartTx {
		t.Errorf("posts = %v", fd.posts)
	}
	if *refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", *refreshes)
	}
	if store.Banner() != nil {
		t.Error("success should clear the banner")
	}
}

func TestEveryActionPostsOnce(t *testing.T) {
	want := map[Action]string{
		StartTx:         device.PathStartTx,
		StopTx:          device.PathStopTx,
		StartRx:         device.PathStartRx,
		StopRx:          device.PathStopRx,
		RestartBoth:     device.PathRestart,
		RestartBackend:  device.PathRestartBackend,
		StartMicMonitor: device.PathMicMonitorStart,
		StopMicMonitor:  device.PathMicMonitorStop,
	}
	for _, a := range Actions() {
		fd := &fakeDevice{}
		d, _, _ := newDispatcher(t, fd)
		if err := d.Run(context.Background(), a); err != nil {
			t.Fatalf("%s: %v", a, err)
		}
		if len(fd.posts) != 1 || fd.posts[0] != want[a] {
			t.Errorf("%s posted %v, want [%s]", a, fd.posts, want[a])
		}
	}
}

func TestRestartBackendSetsInfoWithoutRefresh(t *testing.T) {
	fd := &fakeDevice{}
	d, store, refreshes := newDispatcher(t, fd)
	if err := d.RestartBackend(context.Background()); err != nil {
		t.Fatalf("RestartBackend: %v", err)
	}
	if *refreshes != 0 {
		t.Errorf("restart-backend requested %d refreshes", *refreshes)
	}
	b := store.Banner()
	if b == nil || b.Kind != state.BannerInfo || b.Message != RestartBackendNotice {
		t.Errorf("banner = %+v", b)
	}
}

func TestMicMonitorFlag(t *testing.T) {
	fd := &fakeDevice{}
	d, store, refreshes := newDispatcher(t, fd)
	if err := d.StartMicMonitor(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !store.Snapshot().MicMonitor {
		t.Error("monitor flag not set")
	}
	if err := d.StopMicMonitor(context.Background()); err != nil {
		t.Fatal(err)
	}
	if store.Snapshot().MicMonitor {
		t.Error("monitor flag not cleared")
	}
	if *refreshes != 0 {
		t.Errorf("monitor actions requested %d refreshes", *refreshes)
	}
}

func TestFailureReportsAndSkipsRefresh(t *testing.T) {
	fd := &fakeDevice{fail: map[string]int{device.PathStartRx: http.StatusInternalServerError}}
	d, store, refreshes := newDispatcher(t, fd)

	err := d.StartRx(context.Background())
	var te *device.TransportError
	if !errors.As(err, &te) || te.Status != 500 {
		t.Fatalf("err = %v", err)
	}
	if *refreshes != 0 {
		t.Error("failed action requested a refresh")
	}
	b := store.Banner()
	if b == nil || b.Kind != state.BannerError || b.Source != string(StartRx) {
		t.Errorf("banner = %+v", b)
	}
}

func TestCancelledActionReportsAndSkipsPost(t *testing.T) {
	fd := &fakeDevice{}
	d, store, refreshes := newDispatcher(t, fd)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.StartTx(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(fd.posts) != 0 || *refreshes != 0 {
		t.Errorf("posts=%v refreshes=%d", fd.posts, *refreshes)
	}
	if b := store.Banner(); b == nil || b.Kind != state.BannerError || b.Source != string(StartTx) {
		t.Errorf("banner = %+v", b)
	}

	err := d.DownloadMix(ctx, SaveToDir(t.TempDir(), nil))
	var re *device.ResourceError
	if !errors.As(err, &re) || !errors.Is(err, context.Canceled) {
		t.Errorf("download err = %v", err)
	}
	if b := store.Banner(); b == nil || b.Source != SourceDownload {
		t.Errorf("banner = %+v", b)
	}
}

func TestDownloadMixTempFileFailureIsResourceError(t *testing.T) {
	t.Setenv("TMPDIR", filepath.Join(t.TempDir(), "missing"))
	d, store, _ := newDispatcher(t, &fakeDevice{})

	called := false
	err := d.DownloadMix(context.Background(), func(context.Context, *os.File) error {
		called = true
		return nil
	})
	var re *device.ResourceError
	if !errors.As(err, &re) || re.Path != device.PathDownloadMix {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Error("SaveAs called without a temp file")
	}
	if b := store.Banner(); b == nil || b.Source != SourceDownload {
		t.Errorf("banner = %+v", b)
	}
}

func TestParseAction(t *testing.T) {
	if a, err := ParseAction("restart-backend"); err != nil || a != RestartBackend {
		t.Errorf("ParseAction = %q, %v", a, err)
	}
	if _, err := ParseAction("reboot"); err == nil {
		t.Error("unknown action accepted")
	}
}

func TestDownloadMixSavesToDir(t *testing.T) {
	fd := &fakeDevice{}
	d, _, _ := newDispatcher(t, fd)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mix.wav"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	var saved string
	if err := d.DownloadMix(context.Background(), SaveToDir(dir, func(p string) { saved = p })); err != nil {
		t.Fatalf("DownloadMix: %v", err)
	}
	if filepath.Base(saved) != "mix-2.wav" {
		t.Errorf("saved to %s", saved)
	}
	data, err := os.ReadFile(saved)
	if err != nil || string(data) != "RIFFmixWAVE" {
		t.Errorf("saved data = %q, %v", data, err)
	}
}

var errDiskFull = errors.New("disk full")

func TestDownloadMixReleasesTempOnSaveAsFailure(t *testing.T) {
	fd := &fakeDevice{}
	d, store, _ := newDispatcher(t, fd)

	var tmp *os.File
	err := d.DownloadMix(context.Background(), func(_ context.Context, f *os.File) error {
		tmp = f
		return errDiskFull
	})
	var re *device.ResourceError
	if !errors.As(err, &re) || !errors.Is(err, errDiskFull) {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(tmp.Name()); !os.IsNotExist(statErr) {
		t.Errorf("temp file still exists: %v", statErr)
	}
	if _, werr := tmp.Write([]byte("x")); werr == nil {
		t.Error("temp file handle still open")
	}
	if b := store.Banner(); b == nil || b.Source != SourceDownload {
		t.Errorf("banner = %+v", b)
	}
}

func TestDownloadMixResourceError(t *testing.T) {
	fd := &fakeDevice{fail: map[string]int{device.PathDownloadMix: http.StatusNotFound}}
	d, _, _ := newDispatcher(t, fd)

	called := false
	err := d.DownloadMix(context.Background(), func(context.Context, *os.File) error {
		called = true
		return nil
	})
	var re *device.ResourceError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Error("SaveAs called for a failed download")
	}
}
