// database/db_runlog.go
package database

import (
	"context"
	"encoding/json"
	"fmt"

	"orchctl/common"
)

// Record inserts rec. A run id that was already journaled is ignored.
func (j *Journal) Record(ctx context.Context, rec common.RunRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	_, err = j.pool.Exec(ctx, `
		INSERT INTO run_journal
			(run_id, target, playbook, exit_code, succeeded, key_staged, cleanup_error, error, data, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),$9::jsonb,$10,$11)
		ON CONFLICT (run_id) DO NOTHING`,
		rec.RunID, rec.Target, rec.Playbook, rec.ExitCode, rec.Succeeded, rec.KeyStaged,
		rec.CleanupError, rec.Error, string(b), rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.RunID, err)
	}
	j.log.Debugf("journal: recorded run %s", rec.RunID)
	return nil
}
