package orchestrator_test

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/local/captionpipe/internal/ai"
	"github.com/local/captionpipe/internal/failure"
	"github.com/local/captionpipe/internal/orchestrator"
	"github.com/local/captionpipe/internal/scraper"
	"github.com/local/captionpipe/internal/storage"
	"github.com/local/captionpipe/internal/submit"
)

const apiResponse = `{"id":"cmpl-1","status":"success","choices":[{"index":0,"message":{"role":"assistant","content":"A red square on a white background."}}],"usage":{"prompt_tokens":12,"completion_tokens":9}}`

type endpoint struct {
	mu     sync.Mutex
	srv    *httptest.Server
	bodies [][]byte
	status int
	reply  string
}

func newEndpoint(t *testing.T, status int, reply string) *endpoint {
	t.Helper()
	e := &endpoint{status: status, reply: reply}
	e.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		e.mu.Lock()
		e.bodies = append(e.bodies, b)
		e.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(e.status)
		_, _ = io.WriteString(w, e.reply)
	}))
	t.Cleanup(e.srv.Close)
	return e
}

func (e *endpoint) calls() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.bodies...)
}

type staticRenderer string

func (r staticRenderer) Render(context.Context, string) (string, error) { return string(r), nil }

type staticToken string

func (s staticToken) Token(ctx context.Context) (string, error) { return string(s), ctx.Err() }

type statusLog struct {
	mu       sync.Mutex
	states   []orchestrator.State
	captions []string
}

func (s *statusLog) Set(_ context.Context, _ string, st orchestrator.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st.State)
	return nil
}

func (s *statusLog) SaveCaption(_ context.Context, _ string, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captions = append(s.captions, caption)
	return nil
}

type fakeArchive struct {
	files []storage.Artifact
	err   error
}

func (f *fakeArchive) ArchiveRun(_ context.Context, runID string, files []storage.Artifact) ([]string, error) {
	f.files = files
	if f.err != nil {
		return nil, f.err
	}
	return []string{"s3://bucket/" + runID}, nil
}

type harness struct {
	dir        string
	api        *endpoint
	submission *endpoint
	status     *statusLog
	deps       orchestrator.Dependencies
}

func newHarness(t *testing.T, page string, apiStatus int, apiReply string, submitStatus int) *harness {
	t.Helper()
	h := &harness{
		dir:        t.TempDir(),
		api:        newEndpoint(t, apiStatus, apiReply),
		submission: newEndpoint(t, submitStatus, `{"ok":true}`),
		status:     &statusLog{},
	}
	log := zerolog.Nop()
	h.deps = orchestrator.Dependencies{
		Credentials: staticToken("tok"),
		Fetcher: scraper.New(scraper.Options{
			TargetURL: "https://example/scrape/page",
			OutputDir: filepath.Join(h.dir, "scraped_images"),
			Renderer:  staticRenderer(page),
			Log:       log,
		}),
		Inference: ai.NewCaptionClient(ai.CaptionOptions{
			APIURL: h.api.srv.URL,
			Model:  "microsoft-florence-2-large",
			Prompt: "Provide a <DETAILED_CAPTION> for this image.",
			Log:    log,
		}),
		Submitter:  submit.New(submit.Options{URL: h.submission.srv.URL, Log: log}),
		Status:     h.status,
		ResultPath: filepath.Join(h.dir, "inference_result.json"),
		Log:        log,
	}
	return h
}

func TestRunInlineImageEndToEnd(t *testing.T) {
	h := newHarness(t, `<html><body><img src="data:image/png;base64,QUJD"></body></html>`, http.StatusOK, apiResponse, http.StatusOK)

	out := orchestrator.New(h.deps).Run(context.Background())
	require.NoError(t, out.Err)
	require.Equal(t, orchestrator.StateDone, out.State)
	require.True(t, out.Submitted)
	require.Equal(t, "A red square on a white background.", out.Caption)
	require.NoError(t, out.CaptionErr)

	img, err := os.ReadFile(out.ImagePath)
	require.NoError(t, err)
	require.Equal(t, "414243", hex.EncodeToString(img))

	apiCalls := h.api.calls()
	require.Len(t, apiCalls, 1)
	var req ai.ChatRequest
	require.NoError(t, json.Unmarshal(apiCalls[0], &req))
	require.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(img), req.Messages[0].Content[1].ImageURL.URL)

	saved, err := os.ReadFile(out.ResultPath)
	require.NoError(t, err)
	require.JSONEq(t, apiResponse, string(saved))

	subCalls := h.submission.calls()
	require.Len(t, subCalls, 1)
	require.Equal(t, saved, subCalls[0])

	require.Equal(t, []orchestrator.State{
		orchestrator.StateObtainCredential,
		orchestrator.StateFetchImage,
		orchestrator.StateInfer,
		orchestrator.StatePersistResult,
		orchestrator.StateSubmit,
		orchestrator.StateExtractCaption,
		orchestrator.StateDone,
	}, h.status.states)
	require.Equal(t, []string{"A red square on a white background."}, h.status.captions)
}

func TestRunRemoteImage404StopsBeforeInference(t *testing.T) {
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()
	h := newHarness(t, `<img src="`+missing.URL+`/pic.jpg">`, http.StatusOK, apiResponse, http.StatusOK)

	out := orchestrator.New(h.deps).Run(context.Background())
	require.Equal(t, orchestrator.StateAborted, out.State)
	require.Equal(t, orchestrator.StateFetchImage, out.FailedAt)
	require.Equal(t, failure.KindTransport, failure.KindOf(out.Err))
	require.Empty(t, out.ImagePath)
	require.Empty(t, h.api.calls())
	require.Empty(t, h.submission.calls())
	require.Equal(t, orchestrator.StateAborted, h.status.states[len(h.status.states)-1])
}

func TestRunNoImageStopsBeforeInference(t *testing.T) {
	h := newHarness(t, `<p>no pictures</p>`, http.StatusOK, apiResponse, http.StatusOK)

	out := orchestrator.New(h.deps).Run(context.Background())
	require.Equal(t, orchestrator.StateAborted, out.State)
	require.Equal(t, failure.KindExtraction, failure.KindOf(out.Err))
	require.ErrorIs(t, out.Err, scraper.ErrNoImage)
	require.Empty(t, h.api.calls())
	require.Empty(t, h.submission.calls())
}

func TestRunInferenceFailureStopsBeforeSubmit(t *testing.T) {
	h := newHarness(t, `<img src="data:image/png;base64,QUJD">`, http.StatusInternalServerError, `{"error":"down"}`, http.StatusOK)

	out := orchestrator.New(h.deps).Run(context.Background())
	require.Equal(t, orchestrator.StateAborted, out.State)
	require.Equal(t, orchestrator.StateInfer, out.FailedAt)
	require.Equal(t, http.StatusInternalServerError, failure.StatusCode(out.Err))
	require.Len(t, h.api.calls(), 1)
	require.Empty(t, h.submission.calls())

	_, err := os.Stat(filepath.Join(h.dir, "inference_result.json"))
	require.True(t, os.IsNotExist(err))
}

func TestRunSubmitFailureSkipsCaption(t *testing.T) {
	h := newHarness(t, `<img src="data:image/png;base64,QUJD">`, http.StatusOK, apiResponse, http.StatusForbidden)

	out := orchestrator.New(h.deps).Run(context.Background())
	require.Equal(t, orchestrator.StateAborted, out.State)
	require.Equal(t, orchestrator.StateSubmit, out.FailedAt)
	require.False(t, out.Submitted)
	require.Empty(t, out.Caption)
	require.Len(t, h.submission.calls(), 1)
	require.NotContains(t, h.status.states, orchestrator.StateExtractCaption)
}

func TestRunMalformedCaptionIsNotFatal(t *testing.T) {
	h := newHarness(t, `<img src="data:image/png;base64,QUJD">`, http.StatusOK, `{"status":"success","choices":[]}`, http.StatusOK)

	out := orchestrator.New(h.deps).Run(context.Background())
	require.NoError(t, out.Err)
	require.Equal(t, orchestrator.StateDone, out.State)
	require.True(t, out.Submitted)
	require.Empty(t, out.Caption)
	require.Equal(t, failure.KindShape, failure.KindOf(out.CaptionErr))
	require.Empty(t, h.status.captions)
}

func TestRunArchivesArtifacts(t *testing.T) {
	h := newHarness(t, `<img src="data:image/png;base64,QUJD">`, http.StatusOK, apiResponse, http.StatusOK)
	arch := &fakeArchive{}
	h.deps.Archive = arch

	out := orchestrator.New(h.deps).Run(context.Background())
	require.Equal(t, orchestrator.StateDone, out.State)
	require.Equal(t, []string{"s3://bucket/" + out.RunID}, out.Archived)
	require.Len(t, arch.files, 2)
	require.Equal(t, "scraped_image.jpg", arch.files[0].Name)
	require.Equal(t, []byte("ABC"), arch.files[0].Data)
	require.Equal(t, "inference_result.json", arch.files[1].Name)
}

func TestRunArchiveFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t, `<img src="data:image/png;base64,QUJD">`, http.StatusOK, apiResponse, http.StatusOK)
	h.deps.Archive = &fakeArchive{err: errors.New("bucket gone")}

	out := orchestrator.New(h.deps).Run(context.Background())
	require.Equal(t, orchestrator.StateDone, out.State)
	require.Empty(t, out.Archived)
	require.Len(t, h.submission.calls(), 1)
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t, `<img src="data:image/png;base64,QUJD">`, http.StatusOK, apiResponse, http.StatusOK)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := orchestrator.New(h.deps).Run(ctx)
	require.Equal(t, orchestrator.StateAborted, out.State)
	require.Equal(t, orchestrator.StateObtainCredential, out.FailedAt)
	require.ErrorIs(t, out.Err, context.Canceled)
	require.Empty(t, h.api.calls())
}

type failingToken struct{ err error }

func (f failingToken) Token(context.Context) (string, error) { return "", f.err }

func TestRunInterruptedTokenPromptAborts(t *testing.T) {
	h := newHarness(t, `<img src="data:image/png;base64,QUJD">`, http.StatusOK, apiResponse, http.StatusOK)
	h.deps.Credentials = failingToken{err: context.Canceled}

	out := orchestrator.New(h.deps).Run(context.Background())
	require.Equal(t, orchestrator.StateAborted, out.State)
	require.Equal(t, orchestrator.StateObtainCredential, out.FailedAt)
	require.ErrorIs(t, out.Err, context.Canceled)
	require.Empty(t, out.ImagePath)
	require.Empty(t, h.api.calls())
	require.Empty(t, h.submission.calls())
}
