package storage

import (
	"context"
	"database/sql"
)

const runColumns = "id, kind, path, ok, inserted, duplicates, failures, report_json, started_at, finished_at"

// -- IngestRun operations --

func (d *Database) RecordRun(ctx context.Context, run IngestRun) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return closedErr()
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Path, boolToInt(run.OK), run.Inserted, run.Duplicates,
		run.Failures, run.ReportJSON,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return storageErr(err, "record run %s", run.ID)
	}
	return nil
}

func (d *Database) ListRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, closedErr()
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM ingest_runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, storageErr(err, "list runs")
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, storageErr(err, "list runs")
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list runs")
	}
	return runs, nil
}

func (d *Database) GetRun(ctx context.Context, id string) (*IngestRun, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, closedErr()
	}

	r, err := scanRun(d.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM ingest_runs WHERE id=?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "get run %s", id)
	}
	return r, nil
}

func scanRun(row rowScanner) (*IngestRun, error) {
	var r IngestRun
	var ok int
	var report sql.NullString
	var started, finished string
	err := row.Scan(&r.ID, &r.Kind, &r.Path, &ok, &r.Inserted, &r.Duplicates,
		&r.Failures, &report, &started, &finished)
	if err != nil {
		return nil, err
	}
	r.OK = ok != 0
	r.ReportJSON = report.String
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
