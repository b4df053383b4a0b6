package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/captionpipe/internal/storage"
)

// State is one step of a run.
type State string

const (
	StateObtainCredential State = "OBTAIN_CREDENTIAL"
	StateFetchImage       State = "FETCH_IMAGE"
	StateInfer            State = "INFER"
	StatePersistResult    State = "PERSIST_RESULT"
	StateSubmit           State = "SUBMIT"
	StateExtractCaption   State = "EXTRACT_CAPTION"
	StateDone             State = "DONE"
	StateAborted          State = "ABORTED"
)

var progress = map[State]int{
	StateObtainCredential: 5,
	StateFetchImage:       20,
	StateInfer:            50,
	StatePersistResult:    70,
	StateSubmit:           85,
	StateExtractCaption:   95,
	StateDone:             100,
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Fetcher interface {
	Scrape(ctx context.Context) (string, error)
}

type Inferrer interface {
	Infer(ctx context.Context, imagePath, token string) (json.RawMessage, error)
}

type Submitter interface {
	Submit(ctx context.Context, body []byte, token string) error
}

type Status struct {
	State    State
	Progress int
	Message  string
	Start    *time.Time
	End      *time.Time
	Metadata map[string]any
}

type StatusStore interface {
	Set(ctx context.Context, runID string, st Status) error
}

// CaptionStore is optionally implemented by a StatusStore.
type CaptionStore interface {
	SaveCaption(ctx context.Context, runID, caption string) error
}

type Archiver interface {
	ArchiveRun(ctx context.Context, runID string, files []storage.Artifact) ([]string, error)
}

// Dependencies wires the stages of a run. Status and Archive are optional.
type Dependencies struct {
	Credentials TokenSource
	Fetcher     Fetcher
	Inference   Inferrer
	Submitter   Submitter
	Status      StatusStore
	Archive     Archiver
	ResultPath  string
	Log         zerolog.Logger
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.ResultPath == "" {
		deps.ResultPath = "inference_result.json"
	}
	return &Orchestrator{deps: deps}
}

// Outcome describes how a run ended.
type Outcome struct {
	RunID      string
	State      State // DONE or ABORTED
	FailedAt   State // set when State is ABORTED
	Err        error
	ImagePath  string
	ResultPath string
	Submitted  bool
	Caption    string
	CaptionErr error // shape failure while reading the caption; never aborts
	Archived   []string
}
