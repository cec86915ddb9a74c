package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
)

// journalTimeout bounds each journal write so a slow disk cannot stall the
// publisher for long.
const journalTimeout = 2 * time.Second

// Publish is one journaled publish.
type Publish struct {
	Handle     ir.Handle  `json:"handle"`
	Version    ir.Version `json:"version"`
	Status     string     `json:"status"`
	Length     int        `json:"length,omitempty"`
	Channels   int        `json:"channels,omitempty"`
	SampleRate int        `json:"sample_rate,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Publish statuses.
const (
	StatusData  = "data"
	StatusError = "error"
)

// Journal is a bridge.Broadcaster that records publish metadata (never the
// audio itself) in the registry database.
type Journal struct {
	registry *Registry
	logger   *slog.Logger
}

var _ bridge.Broadcaster = (*Journal)(nil)

// NewJournal creates a Journal writing into r.
func NewJournal(r *Registry, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{registry: r, logger: logger}
}

// Broadcast records SetSampleData and SetSampleError messages and ignores
// everything else. Failures are logged; broadcast delivery is best effort.
func (j *Journal) Broadcast(msg bridge.Message) {
	var p Publish
	switch m := msg.(type) {
	case bridge.SetSampleData:
		p = Publish{
			Handle:     m.Handle,
			Version:    m.Version,
			Status:     StatusData,
			Channels:   len(m.Channels),
			SampleRate: m.SampleRate,
		}
		if len(m.Channels) > 0 {
			p.Length = len(m.Channels[0])
		}
	case bridge.SetSampleError:
		p = Publish{Handle: m.Handle, Version: m.Version, Status: StatusError, Error: m.Error}
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := j.registry.RecordPublish(ctx, p); err != nil {
		j.logger.Warn("journal write failed", "handle", p.Handle, "version", p.Version, "error", err)
	}
}

// RecordPublish stores p. Re-recording the same (handle, version) is a
// no-op.
func (r *Registry) RecordPublish(ctx context.Context, p Publish) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO publishes
		(handle, version, status, length, channels, sample_rate, error, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle, version) DO NOTHING
	`,
		int64(p.Handle),
		int64(p.Version),
		p.Status,
		p.Length,
		p.Channels,
		p.SampleRate,
		p.Error,
		r.nextSeq(),
	)
	if err != nil {
		return fmt.Errorf("record publish %s@%d: %w", p.Handle, p.Version, err)
	}
	return nil
}

// Publishes returns the journaled publishes of h in delivery order. A
// NoHandle h returns every publish.
func (r *Registry) Publishes(ctx context.Context, h ir.Handle) ([]Publish, error) {
	query := `
		SELECT handle, version, status, length, channels, sample_rate, error
		FROM publishes
	`
	var args []any
	if h.Valid() {
		query += ` WHERE handle = ?`
		args = append(args, int64(h))
	}
	query += ` ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query publishes: %w", err)
	}
	defer rows.Close()

	out := []Publish{}
	for rows.Next() {
		var (
			p       Publish
			handle  int64
			version int64
		)
		if err := rows.Scan(&handle, &version, &p.Status, &p.Length, &p.Channels, &p.SampleRate, &p.Error); err != nil {
			return nil, fmt.Errorf("scan publish: %w", err)
		}
		p.Handle = ir.Handle(handle)
		p.Version = ir.Version(version)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publishes: %w", err)
	}
	return out, nil
}
