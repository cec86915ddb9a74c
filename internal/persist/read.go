package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/samplerec/internal/ir"
	"github.com/roach88/samplerec/internal/sample"
)

// Registrations returns every registration ordered by handle.
//
// Returns an empty slice (not nil) if nothing is registered.
func (r *Registry) Registrations(ctx context.Context) ([]sample.Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT handle, kind, external_id, project_id, seconds, callback_id
		FROM registrations
		ORDER BY handle ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	regs := []sample.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return regs, nil
}

// Lookup returns the registration of h.
func (r *Registry) Lookup(ctx context.Context, h ir.Handle) (sample.Registration, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT handle, kind, external_id, project_id, seconds, callback_id
		FROM registrations
		WHERE handle = ?
	`, int64(h))
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sample.Registration{}, false, nil
	}
	if err != nil {
		return sample.Registration{}, false, err
	}
	return reg, true, nil
}

// FindOrigin returns the handle registered with the same origin identity as
// o, for external and record origins.
func (r *Registry) FindOrigin(ctx context.Context, o ir.Origin) (ir.Handle, bool, error) {
	originID, err := ir.OriginID(o)
	if err != nil {
		return ir.NoHandle, false, err
	}
	var h int64
	err = r.db.QueryRowContext(ctx, `
		SELECT handle FROM registrations
		WHERE origin_id = ? AND kind IN ('external', 'record')
		ORDER BY handle ASC
		LIMIT 1
	`, originID).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.NoHandle, false, nil
	}
	if err != nil {
		return ir.NoHandle, false, fmt.Errorf("find origin: %w", err)
	}
	return ir.Handle(h), true, nil
}

// Invalidated returns the handles flagged by Invalidate, ascending.
func (r *Registry) Invalidated(ctx context.Context) ([]ir.Handle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT handle FROM registrations WHERE invalidated = 1 ORDER BY handle ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query invalidated: %w", err)
	}
	defer rows.Close()

	var handles []ir.Handle
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan invalidated: %w", err)
		}
		handles = append(handles, ir.Handle(h))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invalidated: %w", err)
	}
	return handles, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (sample.Registration, error) {
	var (
		h    int64
		kind string
		o    ir.Origin
	)
	if err := row.Scan(&h, &kind, &o.ExternalID, &o.ProjectID, &o.Seconds, &o.CallbackID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sample.Registration{}, err
		}
		return sample.Registration{}, fmt.Errorf("scan registration: %w", err)
	}
	o.Kind = ir.OriginKind(kind)
	return sample.Registration{Handle: ir.Handle(h), Origin: o}, nil
}
