package store

import "time"

// MarkEvaluated records that one student sheet finished scoring in a run.
// Idempotent: re-marking is a no-op.
func (l *Local) MarkEvaluated(runID, studentFilename string) error {
	_, err := l.db.Exec(
		`INSERT INTO run_checkpoints (run_id, student_filename, evaluated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(run_id, student_filename) DO NOTHING`,
		runID, studentFilename, time.Now().UTC(),
	)
	return err
}

// Evaluated returns the student filenames already scored in a run, so a
// resumed batch skips them.
func (l *Local) Evaluated(runID string) (map[string]bool, error) {
	rows, err := l.db.Query(
		`SELECT student_filename FROM run_checkpoints WHERE run_id = ?`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

// ClearRun drops the checkpoints of a finished run.
func (l *Local) ClearRun(runID string) error {
	_, err := l.db.Exec(`DELETE FROM run_checkpoints WHERE run_id = ?`, runID)
	return err
}
