package dispatch_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agendazap/dispatcher/svc/dispatch"
)

var brt = time.FixedZone("BRT", -3*60*60)

// tickTime is 2025-03-10 09:30:15 local.
var tickTime = time.Date(2025, time.March, 10, 9, 30, 15, 0, brt)

func phones(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("+55119%08d", i)
	}
	return out
}

func mediaID(id int64) *int64 { return &id }

func dueDefinition(id, owner int64, mode dispatch.SendMode, recipients int) dispatch.Definition {
	return dispatch.Definition{
		ID:         id,
		OwnerID:    owner,
		CampaignID: uuid.New(),
		Dates:      []dispatch.Date{dispatch.DateOf(tickTime)},
		Time:       dispatch.TimeOf(tickTime),
		Recipients: phones(recipients),
		Interval:   3 * time.Second,
		Body:       "Aula hoje",
		Mode:       mode,
		Order:      dispatch.TextFirst,
	}
}

type recordingSubmitter struct {
	mu    sync.Mutex
	ops   []dispatch.SendOperation
	fail  func(op dispatch.SendOperation) error
	panic bool
}

func (s *recordingSubmitter) Submit(_ context.Context, op dispatch.SendOperation) error {
	if s.panic {
		panic("queue exploded")
	}
	if s.fail != nil {
		if err := s.fail(op); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return nil
}

func (s *recordingSubmitter) submitted() []dispatch.SendOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dispatch.SendOperation(nil), s.ops...)
}

type countingResolver struct {
	mu    sync.Mutex
	calls map[int64]int
	next  dispatch.CredentialResolver
}

func (r *countingResolver) ResolveCredentials(ctx context.Context, ownerID int64) (dispatch.Credentials, error) {
	r.mu.Lock()
	r.calls[ownerID]++
	r.mu.Unlock()
	return r.next.ResolveCredentials(ctx, ownerID)
}

// gatedStore blocks ListDue until gate is closed.
type gatedStore struct {
	*dispatch.MemoryStore
	gate chan struct{}
}

func (g *gatedStore) ListDue(ctx context.Context, day dispatch.Date, at dispatch.TimeOfDay) ([]dispatch.Definition, error) {
	<-g.gate
	return g.MemoryStore.ListDue(ctx, day, at)
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) count(msg string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), `"msg":"`+msg+`"`)
}

func bufferLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewJSONHandler(buf, nil)), buf
}
