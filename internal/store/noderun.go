package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NextExecutionIndex returns the next execution_index for (runID, nodeID),
// starting at 1. Callers must call this and insertNodeRun within the same
// WithTx to keep the sequence contiguous under concurrent schedulers.
func NextExecutionIndex(tx *sql.Tx, runID, nodeID string) (int, error) {
	var max sql.NullInt64
	err := tx.QueryRow(
		`SELECT MAX(execution_index) FROM node_runs WHERE run_id = ? AND node_id = ?`,
		runID, nodeID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: next execution index: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

// InsertNodeRunWithArtifacts persists a NodeRun and its NodeArtifacts in
// one transaction — the store's execute_atomic contract (spec §4.1):
// creating the NodeRun and inserting its artifacts must never be
// observed half-done.
func (s *Store) InsertNodeRunWithArtifacts(ctx context.Context, nr NodeRun, artifacts []NodeArtifact) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := insertNodeRun(tx, nr); err != nil {
			return err
		}
		for _, a := range artifacts {
			if err := insertNodeArtifact(tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertNodeRun(tx *sql.Tx, nr NodeRun) error {
	providerMeta, err := marshalJSON(nr.ProviderMetadata)
	if err != nil {
		return fmt.Errorf("store: marshal provider_metadata: %w", err)
	}
	routing, err := marshalJSON(nr.RoutingState)
	if err != nil {
		return fmt.Errorf("store: marshal routing_state: %w", err)
	}
	var code, msg string
	var retryable bool
	if nr.Error != nil {
		code, msg, retryable = nr.Error.Code, nr.Error.Message, nr.Error.Retryable
	}
	_, err = tx.Exec(
		`INSERT INTO node_runs (
			id, run_id, node_id, execution_index, status, stdout, stderr, exit_code,
			finished_at, error_code, error_message, error_retryable,
			provider_metadata, routing_state, degraded, degraded_reason, cancelled_during_flight
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nr.ID, nr.RunID, nr.NodeID, nr.ExecutionIndex, nr.Status, nr.Stdout, nr.Stderr, nr.ExitCode,
		nr.FinishedAt, code, msg, retryable,
		providerMeta, routing, nr.Degraded, nr.DegradedReason, nr.CancelledDuringFlight,
	)
	if err != nil {
		return fmt.Errorf("store: insert node run: %w", err)
	}
	return nil
}

func insertNodeArtifact(tx *sql.Tx, a NodeArtifact) error {
	payload, err := marshalJSON(a.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal artifact payload: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO node_artifacts (id, node_run_id, artifact_type, payload, idempotency_key) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.NodeRunID, a.ArtifactType, payload, a.IdempotencyKey,
	)
	if err != nil {
		return fmt.Errorf("store: insert node artifact: %w", err)
	}
	return nil
}

// GetNodeRun returns a node run by id, or nil if not found.
func (s *Store) GetNodeRun(ctx context.Context, id string) (*NodeRun, error) {
	var nr NodeRun
	var finished sql.NullTime
	var code, msg string
	var retryable bool
	var providerMeta, routing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, node_id, execution_index, status, stdout, stderr, exit_code,
		        started_at, finished_at, error_code, error_message, error_retryable,
		        provider_metadata, routing_state, degraded, degraded_reason, cancelled_during_flight
		 FROM node_runs WHERE id = ?`, id,
	).Scan(
		&nr.ID, &nr.RunID, &nr.NodeID, &nr.ExecutionIndex, &nr.Status, &nr.Stdout, &nr.Stderr, &nr.ExitCode,
		&nr.StartedAt, &finished, &code, &msg, &retryable,
		&providerMeta, &routing, &nr.Degraded, &nr.DegradedReason, &nr.CancelledDuringFlight,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get node run %s: %w", id, err)
	}
	if finished.Valid {
		nr.FinishedAt = &finished.Time
	}
	if code != "" {
		nr.Error = &RunError{Code: code, Message: msg, Retryable: retryable}
	}
	if err := unmarshalJSON(providerMeta, &nr.ProviderMetadata); err != nil {
		return nil, fmt.Errorf("store: unmarshal provider_metadata: %w", err)
	}
	if err := unmarshalJSON(routing, &nr.RoutingState); err != nil {
		return nil, fmt.Errorf("store: unmarshal routing_state: %w", err)
	}
	return &nr, nil
}

// ListNodeRunsForRun returns every NodeRun created for a flowchart run,
// ordered by execution_index ascending within each node.
func (s *Store) ListNodeRunsForRun(ctx context.Context, runID string) ([]NodeRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, node_id, execution_index, status, stdout, stderr, exit_code,
		        started_at, finished_at, error_code, error_message, error_retryable,
		        provider_metadata, routing_state, degraded, degraded_reason, cancelled_during_flight
		 FROM node_runs WHERE run_id = ? ORDER BY node_id ASC, execution_index ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list node runs: %w", err)
	}
	defer rows.Close()

	var out []NodeRun
	for rows.Next() {
		var nr NodeRun
		var finished sql.NullTime
		var code, msg string
		var retryable bool
		var providerMeta, routing string
		if err := rows.Scan(
			&nr.ID, &nr.RunID, &nr.NodeID, &nr.ExecutionIndex, &nr.Status, &nr.Stdout, &nr.Stderr, &nr.ExitCode,
			&nr.StartedAt, &finished, &code, &msg, &retryable,
			&providerMeta, &routing, &nr.Degraded, &nr.DegradedReason, &nr.CancelledDuringFlight,
		); err != nil {
			return nil, fmt.Errorf("store: scan node run: %w", err)
		}
		if finished.Valid {
			nr.FinishedAt = &finished.Time
		}
		if code != "" {
			nr.Error = &RunError{Code: code, Message: msg, Retryable: retryable}
		}
		if err := unmarshalJSON(providerMeta, &nr.ProviderMetadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal provider_metadata: %w", err)
		}
		if err := unmarshalJSON(routing, &nr.RoutingState); err != nil {
			return nil, fmt.Errorf("store: unmarshal routing_state: %w", err)
		}
		out = append(out, nr)
	}
	return out, rows.Err()
}

// ListArtifacts returns the artifacts produced by a node run.
func (s *Store) ListArtifacts(ctx context.Context, nodeRunID string) ([]NodeArtifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, node_run_id, artifact_type, payload, idempotency_key FROM node_artifacts WHERE node_run_id = ? ORDER BY id ASC`,
		nodeRunID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list artifacts: %w", err)
	}
	defer rows.Close()

	var out []NodeArtifact
	for rows.Next() {
		var a NodeArtifact
		var payload string
		if err := rows.Scan(&a.ID, &a.NodeRunID, &a.ArtifactType, &payload, &a.IdempotencyKey); err != nil {
			return nil, fmt.Errorf("store: scan artifact: %w", err)
		}
		if err := unmarshalJSON(payload, &a.Payload); err != nil {
			return nil, fmt.Errorf("store: unmarshal artifact payload: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HasArtifactForDispatch reports whether any NodeArtifact already exists
// carrying the given idempotency key.
func (s *Store) HasArtifactForDispatch(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM node_artifacts WHERE idempotency_key = ?`, idempotencyKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: has artifact for dispatch: %w", err)
	}
	return count > 0, nil
}

// dispatchRegistryTTL is the retention window for the idempotent-dispatch
// registry (spec §3 invariant: unique across (execution_id, dispatch_id)
// within a process-wide 24-hour window).
const dispatchRegistryTTL = 24 * time.Hour

// RegisterDispatch records (executionID, dispatchID) as seen. It returns
// true if this is the first time the pair has been seen within the TTL
// window, false if it's a duplicate — the noderun runtime uses this to
// short-circuit a repeat dispatch with dispatch_status=dispatch_failed
// rather than re-invoking the provider (spec §4.5).
//
// This is persisted (not just held in an in-process map) so a scheduler
// restart doesn't resurrect a duplicate dispatch mid-flight.
func (s *Store) RegisterDispatch(ctx context.Context, executionID, dispatchID string) (bool, error) {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM dispatch_registry WHERE first_seen_at < datetime('now', ?)`,
		fmt.Sprintf("-%d seconds", int(dispatchRegistryTTL.Seconds())),
	); err != nil {
		return false, fmt.Errorf("store: prune dispatch registry: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dispatch_registry (execution_id, dispatch_id) VALUES (?, ?)`,
		executionID, dispatchID,
	)
	if err != nil {
		return false, fmt.Errorf("store: register dispatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: register dispatch rows affected: %w", err)
	}
	return n == 1, nil
}
