package orchestrator

import (
	"context"

	"github.com/local/captionpipe/internal/store"
)

type redisStatusAdapter struct{ s *store.RedisStatus }

func NewStatusAdapter(s *store.RedisStatus) StatusStore { return &redisStatusAdapter{s: s} }

func (a *redisStatusAdapter) Set(ctx context.Context, runID string, st Status) error {
	m := make(map[string]interface{})
	if st.Metadata != nil {
		m = st.Metadata
	}
	return a.s.Set(ctx, runID, store.Status{
		State:    string(st.State),
		Progress: st.Progress,
		Message:  st.Message,
		Start:    st.Start,
		End:      st.End,
		Metadata: m,
	})
}

func (a *redisStatusAdapter) SaveCaption(ctx context.Context, runID, caption string) error {
	return a.s.SaveCaption(ctx, runID, caption)
}
