package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/furisto/relay/model"
)

// Record captures one completed engine operation for audit or replay.
type Record struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Provider  string
	Model     string
	Turns     int
	Messages  []model.Message
	Usage     model.Usage
	Err       string
}

// Recorder receives records after each completed operation. Implementations
// must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// NopRecorder discards every record.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Record) {}

// MemoryRecorder keeps records in memory, mainly for tests and local
// debugging.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

// Records returns a copy of everything recorded so far.
func (m *MemoryRecorder) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

func newRecord(provider, modelName string) Record {
	return Record{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Provider:  provider,
		Model:     modelName,
	}
}

func (r Record) finish(turns int, messages []model.Message, usage model.Usage, err error) Record {
	r.Duration = time.Since(r.StartedAt)
	r.Turns = turns
	r.Messages = messages
	r.Usage = usage
	if err != nil {
		r.Err = err.Error()
	}
	return r
}
