package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/pullmirror/internal/downloader"
	mirrorhttp "github.com/ligustah/pullmirror/internal/http"
	"github.com/ligustah/pullmirror/internal/sink"
	"github.com/ligustah/pullmirror/internal/task"
	"github.com/ligustah/pullmirror/internal/walker"
)

// fakeProber answers from a function and counts calls.
type fakeProber struct {
	calls atomic.Int32
	fn    func(url string) mirrorhttp.ProbeResult
}

func (p *fakeProber) Probe(ctx context.Context, url string) mirrorhttp.ProbeResult {
	p.calls.Add(1)
	if p.fn == nil {
		return mirrorhttp.ProbeResult{Status: mirrorhttp.Present, StatusCode: http.StatusOK}
	}
	return p.fn(url)
}

// fakeFetcher records downloads and fails for URLs in fail.
type fakeFetcher struct {
	mu    sync.Mutex
	got   map[string]string // url -> dest
	fail  map[string]bool
	calls atomic.Int32
}

func (f *fakeFetcher) Download(ctx context.Context, url, dest string) (downloader.Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[url] {
		return downloader.Result{}, errors.New("origin kept failing")
	}
	if f.got == nil {
		f.got = make(map[string]string)
	}
	f.got[url] = dest
	return downloader.Result{Bytes: 1, ContentLength: -1, Attempts: 1}, nil
}

// blockingFetcher waits for cancellation and reports it the way the
// downloader does.
type blockingFetcher struct {
	started chan struct{}
}

func (f *blockingFetcher) Download(ctx context.Context, url, dest string) (downloader.Result, error) {
	close(f.started)
	<-ctx.Done()
	return downloader.Result{Attempts: 1}, &downloader.Error{URL: url, Attempts: 1, Err: ctx.Err()}
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeTree(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
	}
}

// newOrigin serves files below /assets/ and 404s everything else.
func newOrigin(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[strings.TrimPrefix(r.URL.Path, "/assets/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func newHTTPMirror(srcFs, dstFs afero.Fs, baseURL string, limit int) *Mirror {
	client := mirrorhttp.NewClient(mirrorhttp.DefaultOptions())
	dl := downloader.New(client, sink.NewLocal(dstFs, false), downloader.Options{
		Retries: 1,
		Delay:   time.Millisecond,
		Logger:  zerolog.Nop(),
	})
	return New(client, dl, Options{
		SourceDirectory:      "/src",
		BaseURL:              baseURL,
		DestinationDirectory: "/dst",
		WorkerLimit:          limit,
		SourceFs:             srcFs,
		Logger:               zerolog.Nop(),
	})
}

func TestRunScenario(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string]string{
		"/src/x.txt":     "local x",
		"/src/sub/y.txt": "local y",
	})
	origin := newOrigin(t, map[string]string{
		"x.txt": "remote x bytes",
	})

	dstFs := afero.NewMemMapFs()
	m := newHTTPMirror(srcFs, dstFs, origin.URL+"/assets/", 4)

	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.Workers)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int64(len("remote x bytes")), res.Bytes)

	got, err := afero.ReadFile(dstFs, "/dst/x.txt")
	require.NoError(t, err)
	assert.Equal(t, "remote x bytes", string(got))

	exists, err := afero.Exists(dstFs, "/dst/sub/y.txt")
	require.NoError(t, err)
	assert.False(t, exists, "missing remote file must not be created")
}

func TestRunIdempotent(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	remote := map[string]string{}
	local := map[string]string{}
	for i := 0; i < 12; i++ {
		rel := fmt.Sprintf("dir%d/file%02d.bin", i%3, i)
		local["/src/"+rel] = "local"
		remote[rel] = strings.Repeat(fmt.Sprintf("%02d", i), 1000)
	}
	writeTree(t, srcFs, local)
	origin := newOrigin(t, remote)

	dstFs := afero.NewMemMapFs()
	m := newHTTPMirror(srcFs, dstFs, origin.URL+"/assets/", 5)

	snapshot := func() map[string]string {
		out := map[string]string{}
		for rel := range remote {
			data, err := afero.ReadFile(dstFs, "/dst/"+rel)
			require.NoError(t, err)
			out[rel] = string(data)
		}
		return out
	}

	_, err := m.Run(context.Background())
	require.NoError(t, err)
	first := snapshot()

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, res.Downloaded, "every reachable file is downloaded again")
	assert.Equal(t, first, snapshot())
	assert.Equal(t, remote, first)
}

func TestRunZeroFiles(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	require.NoError(t, srcFs.MkdirAll("/src/empty/dir", 0755))

	prober := &fakeProber{}
	fetcher := &fakeFetcher{}
	m := New(prober, fetcher, Options{
		SourceDirectory:      "/src",
		BaseURL:              "http://origin.test/",
		DestinationDirectory: "/dst",
		WorkerLimit:          8,
		SourceFs:             srcFs,
		Logger:               zerolog.Nop(),
	})

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Files)
	assert.Equal(t, 0, res.Workers)
	assert.Zero(t, prober.calls.Load())
	assert.Zero(t, fetcher.calls.Load())
}

func TestRunEnumerationError(t *testing.T) {
	prober := &fakeProber{}
	m := New(prober, &fakeFetcher{}, Options{
		SourceDirectory: "/missing",
		BaseURL:         "http://origin.test/",
		WorkerLimit:     2,
		SourceFs:        afero.NewMemMapFs(),
		Logger:          zerolog.Nop(),
	})

	_, err := m.Run(context.Background())
	var werr *walker.Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "/missing", werr.Path)
	assert.Zero(t, prober.calls.Load())
}

func TestRunEveryFileExactlyOnce(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	files := map[string]string{}
	for i := 0; i < 23; i++ {
		files[fmt.Sprintf("/src/f%02d", i)] = "x"
	}
	writeTree(t, srcFs, files)

	var (
		mu   sync.Mutex
		seen = map[string]int{}
	)
	m := New(&fakeProber{}, &fakeFetcher{}, Options{
		SourceDirectory:      "/src",
		BaseURL:              "http://origin.test/",
		DestinationDirectory: "/dst",
		WorkerLimit:          5,
		SourceFs:             srcFs,
		Logger:               zerolog.Nop(),
		OnFile: func(ft task.FileTask, o Outcome, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen[ft.RelativePath]++
		},
	})

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Workers)
	assert.Equal(t, 23, res.Downloaded)
	require.Len(t, seen, 23)
	for rel, n := range seen {
		assert.Equal(t, 1, n, "file %s processed %d times", rel, n)
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	files := map[string]string{}
	for i := 0; i < 12; i++ {
		files[fmt.Sprintf("/src/f%02d", i)] = "x"
	}
	writeTree(t, srcFs, files)

	var active, peak atomic.Int32
	prober := &fakeProber{fn: func(url string) mirrorhttp.ProbeResult {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return mirrorhttp.ProbeResult{Status: mirrorhttp.Absent, StatusCode: http.StatusNotFound}
	}}

	m := New(prober, &fakeFetcher{}, Options{
		SourceDirectory: "/src",
		BaseURL:         "http://origin.test/",
		WorkerLimit:     3,
		SourceFs:        srcFs,
		Logger:          zerolog.Nop(),
	})

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, res.Skipped)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1), "workers should run concurrently")
}

func TestRunPerFileFailureDoesNotStopWorker(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string]string{
		"/src/a.txt": "", "/src/b.txt": "", "/src/c.txt": "",
	})

	fetcher := &fakeFetcher{fail: map[string]bool{"http://origin.test/a.txt": true}}
	m := New(&fakeProber{}, fetcher, Options{
		SourceDirectory:      "/src",
		BaseURL:              "http://origin.test/",
		DestinationDirectory: "/dst",
		WorkerLimit:          1,
		SourceFs:             srcFs,
		Logger:               zerolog.Nop(),
	})

	res, err := m.Run(context.Background())
	require.NoError(t, err, "per-file failures must not fail the run")
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Downloaded)
	assert.Equal(t, "/dst/c.txt", fetcher.got["http://origin.test/c.txt"])
}

func TestRunUnreachableIsSkipped(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string]string{"/src/a.txt": "", "/src/b.txt": ""})

	var outcomes sync.Map
	fetcher := &fakeFetcher{}
	m := New(&fakeProber{fn: func(url string) mirrorhttp.ProbeResult {
		if strings.HasSuffix(url, "a.txt") {
			return mirrorhttp.ProbeResult{Status: mirrorhttp.Unreachable, Err: errors.New("timeout")}
		}
		return mirrorhttp.ProbeResult{Status: mirrorhttp.Absent, StatusCode: http.StatusNotFound}
	}}, fetcher, Options{
		SourceDirectory: "/src",
		BaseURL:         "http://origin.test/",
		WorkerLimit:     2,
		SourceFs:        srcFs,
		Logger:          zerolog.Nop(),
		OnFile: func(ft task.FileTask, o Outcome, err error) {
			outcomes.Store(ft.RelativePath, o)
		},
	})

	res, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, fetcher.calls.Load())

	a, _ := outcomes.Load("a.txt")
	b, _ := outcomes.Load("b.txt")
	assert.Equal(t, SkippedUnreachable, a)
	assert.Equal(t, SkippedNotFound, b)
}

func TestRunWorkerCrashFailsRunButNotSiblings(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string]string{
		"/src/a.txt": "", "/src/b.txt": "", "/src/c.txt": "", "/src/d.txt": "",
	})

	prober := &fakeProber{fn: func(url string) mirrorhttp.ProbeResult {
		if strings.HasSuffix(url, "/a.txt") {
			panic("probe exploded")
		}
		return mirrorhttp.ProbeResult{Status: mirrorhttp.Present, StatusCode: http.StatusOK}
	}}
	fetcher := &fakeFetcher{}
	m := New(prober, fetcher, Options{
		SourceDirectory:      "/src",
		BaseURL:              "http://origin.test/",
		DestinationDirectory: "/dst",
		WorkerLimit:          2,
		SourceFs:             srcFs,
		Logger:               zerolog.Nop(),
	})

	res, err := m.Run(context.Background())

	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 0, werr.Worker)
	assert.Contains(t, werr.Error(), "probe exploded")

	// Worker 0 owned a.txt and c.txt and died on a.txt; worker 1 finished.
	assert.Equal(t, 2, res.Downloaded)
	assert.Contains(t, fetcher.got, "http://origin.test/b.txt")
	assert.Contains(t, fetcher.got, "http://origin.test/d.txt")
	assert.NotContains(t, fetcher.got, "http://origin.test/c.txt")
}

func TestRunCancelled(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string]string{"/src/a.txt": "", "/src/b.txt": ""})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := &fakeProber{}
	m := New(prober, &fakeFetcher{}, Options{
		SourceDirectory: "/src",
		BaseURL:         "http://origin.test/",
		WorkerLimit:     2,
		SourceFs:        srcFs,
		Logger:          zerolog.Nop(),
	})

	_, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, prober.calls.Load())
}

func TestRunInterruptedDownloadIsNotAFailure(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string]string{"/src/a.txt": ""})

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &blockingFetcher{started: make(chan struct{})}
	go func() {
		<-fetcher.started
		cancel()
	}()

	var outcomes []Outcome
	m := New(&fakeProber{}, fetcher, Options{
		SourceDirectory:      "/src",
		BaseURL:              "http://origin.test/",
		DestinationDirectory: "/dst",
		WorkerLimit:          1,
		SourceFs:             srcFs,
		Logger:               zerolog.Nop(),
		OnFile: func(_ task.FileTask, o Outcome, _ error) {
			outcomes = append(outcomes, o)
		},
	})

	res, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []Outcome{Interrupted}, outcomes)
	assert.Zero(t, res.Failed)
	assert.Zero(t, res.Downloaded)
}

func TestRunLogsDownloadMetadata(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string]string{"/src/a.txt": "local"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"rev-7"`)
		w.Write([]byte("remote"))
	}))
	t.Cleanup(server.Close)

	var logs syncBuffer
	log := zerolog.New(&logs)
	client := mirrorhttp.NewClient(mirrorhttp.DefaultOptions())
	dl := downloader.New(client, sink.NewLocal(afero.NewMemMapFs(), false), downloader.Options{Logger: log})
	m := New(client, dl, Options{
		SourceDirectory:      "/src",
		BaseURL:              server.URL + "/",
		DestinationDirectory: "/dst",
		WorkerLimit:          1,
		SourceFs:             srcFs,
		Logger:               log,
	})

	_, err := m.Run(context.Background())
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"message":"Downloaded file"`)
	assert.Contains(t, out, `"etag":"rev-7"`)
	assert.Contains(t, out, `"content_length":6`)
	assert.Contains(t, out, `"attempts":1`)
}

func TestPlan(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	writeTree(t, srcFs, map[string]string{
		"/src/x.txt": "", "/src/sub/y.txt": "", "/src/sub/z.txt": "",
	})

	m := New(&fakeProber{}, &fakeFetcher{}, Options{
		SourceDirectory:      "/src",
		BaseURL:              "https://example.test/assets/",
		DestinationDirectory: "/dst",
		WorkerLimit:          2,
		SourceFs:             srcFs,
		Logger:               zerolog.Nop(),
	})

	plan, workers, err := m.Plan()
	require.NoError(t, err)
	assert.Equal(t, 2, workers)
	require.Len(t, plan, 3)

	assert.Equal(t, "https://example.test/assets/sub/y.txt", plan[0].Task.RemoteURL)
	assert.Equal(t, "/dst/sub/y.txt", plan[0].Task.DestinationPath)
	assert.Equal(t, 0, plan[0].Worker)
	assert.Equal(t, 1, plan[1].Worker)
	assert.Equal(t, 0, plan[2].Worker)
	assert.Equal(t, "x.txt", plan[2].Task.RelativePath)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "downloaded", Downloaded.String())
	assert.Equal(t, "skipped_not_found", SkippedNotFound.String())
	assert.Equal(t, "skipped_unreachable", SkippedUnreachable.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "interrupted", Interrupted.String())
}
