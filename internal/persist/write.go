package persist

import (
	"context"
	"fmt"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
)

// Put records reg. A handle that is already registered keeps its original
// origin, matching the never-clobber contract of the store's ensure* calls.
// Reports whether a row was inserted.
func (r *Registry) Put(ctx context.Context, reg sample.Registration) (bool, error) {
	if !reg.Handle.Valid() {
		return false, fmt.Errorf("put registration: invalid handle %s", reg.Handle)
	}
	if err := reg.Origin.Validate(); err != nil {
		return false, fmt.Errorf("put registration %s: %w", reg.Handle, err)
	}
	originID, err := ir.OriginID(reg.Origin)
	if err != nil {
		return false, fmt.Errorf("put registration %s: %w", reg.Handle, err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO registrations
		(handle, origin_id, kind, external_id, project_id, seconds, callback_id, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO NOTHING
	`,
		int64(reg.Handle),
		originID,
		string(reg.Origin.Kind),
		reg.Origin.ExternalID,
		reg.Origin.ProjectID,
		reg.Origin.Seconds,
		reg.Origin.CallbackID,
		r.nextSeq(),
	)
	if err != nil {
		return false, fmt.Errorf("put registration %s: %w", reg.Handle, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put registration %s: %w", reg.Handle, err)
	}
	return n > 0, nil
}

// PutAll records every registration in one transaction.
func (r *Registry) PutAll(ctx context.Context, regs []sample.Registration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put registrations: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO registrations
		(handle, origin_id, kind, external_id, project_id, seconds, callback_id, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("put registrations: %w", err)
	}
	defer stmt.Close()

	for _, reg := range regs {
		if err := reg.Origin.Validate(); err != nil {
			return fmt.Errorf("put registration %s: %w", reg.Handle, err)
		}
		originID, err := ir.OriginID(reg.Origin)
		if err != nil {
			return fmt.Errorf("put registration %s: %w", reg.Handle, err)
		}
		_, err = stmt.ExecContext(ctx,
			int64(reg.Handle),
			originID,
			string(reg.Origin.Kind),
			reg.Origin.ExternalID,
			reg.Origin.ProjectID,
			reg.Origin.Seconds,
			reg.Origin.CallbackID,
			r.nextSeq(),
		)
		if err != nil {
			return fmt.Errorf("put registration %s: %w", reg.Handle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put registrations: %w", err)
	}
	return nil
}

// Invalidate marks h so the next replay clears its audio before ensuring
// it. Unknown handles are ignored.
func (r *Registry) Invalidate(ctx context.Context, h ir.Handle) error {
	_, err := r.db.ExecContext(ctx, `UPDATE registrations SET invalidated = 1 WHERE handle = ?`, int64(h))
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", h, err)
	}
	return nil
}

// Delete forgets h entirely.
func (r *Registry) Delete(ctx context.Context, h ir.Handle) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE handle = ?`, int64(h))
	if err != nil {
		return fmt.Errorf("delete %s: %w", h, err)
	}
	return nil
}

// clearInvalidated resets every invalidation flag after a replay.
func (r *Registry) clearInvalidated(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE registrations SET invalidated = 0 WHERE invalidated = 1`)
	if err != nil {
		return fmt.Errorf("clear invalidated: %w", err)
	}
	return nil
}
