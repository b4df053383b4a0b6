package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/local/captionpipe/internal/failure"
	"github.com/local/captionpipe/internal/filetype"
	"github.com/local/captionpipe/internal/metrics"
	"github.com/local/captionpipe/internal/storage"
)

type run struct {
	id    string
	start time.Time
	log   zerolog.Logger
	meta  map[string]any
}

// Run executes one pass of the pipeline. Each state runs only if the previous
// one succeeded; the first failure ends the run in ABORTED.
func (o *Orchestrator) Run(ctx context.Context) Outcome {
	r := &run{id: uuid.NewString(), start: time.Now(), meta: map[string]any{}}
	r.log = o.deps.Log.With().Str("run_id", r.id).Logger()
	out := Outcome{RunID: r.id}

	r.log.Info().Msg("pipeline started")

	var token string
	if err := o.step(ctx, r, StateObtainCredential, func(ctx context.Context) error {
		t, err := o.deps.Credentials.Token(ctx)
		token = t
		return err
	}); err != nil {
		return o.abort(ctx, r, out, StateObtainCredential, err)
	}

	if err := o.step(ctx, r, StateFetchImage, func(ctx context.Context) error {
		p, err := o.deps.Fetcher.Scrape(ctx)
		if err != nil {
			return err
		}
		out.ImagePath = p
		r.meta["image_path"] = p
		if fi, statErr := os.Stat(p); statErr == nil {
			metrics.SetImageBytes(fi.Size())
			r.meta["image_bytes"] = fi.Size()
		}
		return nil
	}); err != nil {
		return o.abort(ctx, r, out, StateFetchImage, err)
	}

	var raw json.RawMessage
	if err := o.step(ctx, r, StateInfer, func(ctx context.Context) error {
		res, err := o.deps.Inference.Infer(ctx, out.ImagePath, token)
		raw = res
		return err
	}); err != nil {
		return o.abort(ctx, r, out, StateInfer, err)
	}

	var body []byte
	if err := o.step(ctx, r, StatePersistResult, func(ctx context.Context) error {
		b, err := SaveResult(o.deps.ResultPath, raw)
		if err != nil {
			return err
		}
		body = b
		out.ResultPath = o.deps.ResultPath
		r.meta["result_path"] = o.deps.ResultPath
		r.log.Info().Str("path", o.deps.ResultPath).Msg("inference result saved")
		out.Archived = o.archive(ctx, r, out.ImagePath, body)
		return nil
	}); err != nil {
		return o.abort(ctx, r, out, StatePersistResult, err)
	}

	if err := o.step(ctx, r, StateSubmit, func(ctx context.Context) error {
		return o.deps.Submitter.Submit(ctx, body, token)
	}); err != nil {
		return o.abort(ctx, r, out, StateSubmit, err)
	}
	out.Submitted = true

	_ = o.step(ctx, r, StateExtractCaption, func(ctx context.Context) error {
		caption, err := ExtractCaption(raw)
		if err != nil {
			out.CaptionErr = failure.Shape(string(StateExtractCaption), err)
			r.log.Error().Err(out.CaptionErr).Msg("could not extract caption from inference result")
			return out.CaptionErr
		}
		out.Caption = caption
		if cs, ok := o.deps.Status.(CaptionStore); ok && cs != nil {
			if err := cs.SaveCaption(ctx, r.id, caption); err != nil {
				r.log.Warn().Err(err).Msg("failed to store caption")
			}
		}
		return nil
	})

	out.State = StateDone
	end := time.Now()
	o.setStatus(ctx, r, Status{State: StateDone, Progress: progress[StateDone], Message: "run completed", End: &end})
	metrics.IncRun(string(StateDone))
	r.log.Info().Dur("duration", time.Since(r.start)).Msg("pipeline completed")
	return out
}

// step records the transition into state, runs fn and records its result.
func (o *Orchestrator) step(ctx context.Context, r *run, state State, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before %s: %w", state, err)
	}
	o.setStatus(ctx, r, Status{State: state, Progress: progress[state], Message: "running"})
	r.log.Info().Str("state", string(state)).Msg("state entered")

	t0 := time.Now()
	err := fn(ctx)
	result := "success"
	if err != nil {
		result = string(failure.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.ObserveStage(stageLabel(state), result, time.Since(t0))
	return err
}

func (o *Orchestrator) abort(ctx context.Context, r *run, out Outcome, state State, err error) Outcome {
	out.State = StateAborted
	out.FailedAt = state
	out.Err = err
	r.meta["failed_state"] = string(state)
	r.meta["error"] = err.Error()
	if k := failure.KindOf(err); k != "" {
		r.meta["failure_kind"] = string(k)
	}
	r.log.Error().Err(err).Str("stage", string(state)).Msg("pipeline aborted")

	end := time.Now()
	// status writes must still land when the run was cancelled
	o.setStatus(context.WithoutCancel(ctx), r, Status{State: StateAborted, Progress: progress[state], Message: err.Error(), End: &end})
	metrics.IncRun(string(StateAborted))
	return out
}

func (o *Orchestrator) setStatus(ctx context.Context, r *run, st Status) {
	if o.deps.Status == nil {
		return
	}
	st.Start = &r.start
	st.Metadata = r.meta
	if err := o.deps.Status.Set(ctx, r.id, st); err != nil {
		r.log.Warn().Err(err).Str("state", string(st.State)).Msg("failed to record run status")
	}
}

// archive copies the run artifacts when an archive is configured. Failures
// are logged only.
func (o *Orchestrator) archive(ctx context.Context, r *run, imagePath string, result []byte) []string {
	if o.deps.Archive == nil {
		return nil
	}
	img, err := os.ReadFile(imagePath)
	if err != nil {
		r.log.Warn().Err(err).Msg("archive skipped: image unreadable")
		return nil
	}
	info := filetype.New().Detect(img)
	locs, err := o.deps.Archive.ArchiveRun(ctx, r.id, []storage.Artifact{
		{Name: filepath.Base(imagePath), Data: img, ContentType: info.MIMEType},
		{Name: filepath.Base(o.deps.ResultPath), Data: result, ContentType: "application/json"},
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("archive failed")
	}
	if len(locs) > 0 {
		r.meta["archived"] = locs
	}
	return locs
}

func stageLabel(s State) string { return strings.ToLower(string(s)) }
