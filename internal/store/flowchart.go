package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// CreateFlowchart inserts a new flowchart.
func (s *Store) CreateFlowchart(ctx context.Context, fc Flowchart) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flowcharts (id, name, version) VALUES (?, ?, ?)`,
		fc.ID, fc.Name, fc.Version,
	)
	if err != nil {
		return fmt.Errorf("store: create flowchart: %w", err)
	}
	return nil
}

// GetFlowchart returns a flowchart by id, or nil if not found.
func (s *Store) GetFlowchart(ctx context.Context, id string) (*Flowchart, error) {
	var fc Flowchart
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, version FROM flowcharts WHERE id = ?`, id,
	).Scan(&fc.ID, &fc.Name, &fc.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get flowchart %s: %w", id, err)
	}
	return &fc, nil
}

// CreateNode inserts a flowchart node. Config is marshaled to JSON.
func (s *Store) CreateNode(ctx context.Context, n FlowchartNode) error {
	cfg, err := marshalJSON(n.Config)
	if err != nil {
		return fmt.Errorf("store: marshal node config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flowchart_nodes (id, flowchart_id, node_type, ref_id, config) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.FlowchartID, n.NodeType, n.RefID, cfg,
	)
	if err != nil {
		return fmt.Errorf("store: create node: %w", err)
	}
	return nil
}

// ListNodes returns all nodes belonging to a flowchart, ordered by id
// ascending (the scheduler's tie-break order, spec §4.6).
func (s *Store) ListNodes(ctx context.Context, flowchartID string) ([]FlowchartNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flowchart_id, node_type, ref_id, config FROM flowchart_nodes WHERE flowchart_id = ? ORDER BY id ASC`,
		flowchartID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list nodes: %w", err)
	}
	defer rows.Close()

	var out []FlowchartNode
	for rows.Next() {
		var n FlowchartNode
		var cfg string
		if err := rows.Scan(&n.ID, &n.FlowchartID, &n.NodeType, &n.RefID, &cfg); err != nil {
			return nil, fmt.Errorf("store: scan node: %w", err)
		}
		if err := unmarshalJSON(cfg, &n.Config); err != nil {
			return nil, fmt.Errorf("store: unmarshal node config: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CreateConnector inserts a flowchart connector.
func (s *Store) CreateConnector(ctx context.Context, c FlowchartConnector) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flowchart_connectors (id, flowchart_id, from_node, to_node, connector_id, condition_text, iteration_limit)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FlowchartID, c.FromNode, c.ToNode, c.ConnectorID, c.ConditionText, c.IterationLimit,
	)
	if err != nil {
		return fmt.Errorf("store: create connector: %w", err)
	}
	return nil
}

// ListConnectors returns all connectors belonging to a flowchart.
func (s *Store) ListConnectors(ctx context.Context, flowchartID string) ([]FlowchartConnector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, flowchart_id, from_node, to_node, connector_id, condition_text, iteration_limit
		 FROM flowchart_connectors WHERE flowchart_id = ? ORDER BY id ASC`,
		flowchartID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list connectors: %w", err)
	}
	defer rows.Close()

	var out []FlowchartConnector
	for rows.Next() {
		var c FlowchartConnector
		if err := rows.Scan(&c.ID, &c.FlowchartID, &c.FromNode, &c.ToNode, &c.ConnectorID, &c.ConditionText, &c.IterationLimit); err != nil {
			return nil, fmt.Errorf("store: scan connector: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// OutgoingConnectors returns connectors whose from_node == nodeID.
func (s *Store) OutgoingConnectors(ctx context.Context, flowchartID, nodeID string) ([]FlowchartConnector, error) {
	all, err := s.ListConnectors(ctx, flowchartID)
	if err != nil {
		return nil, err
	}
	var out []FlowchartConnector
	for _, c := range all {
		if c.FromNode == nodeID {
			out = append(out, c)
		}
	}
	return out, nil
}

// IncomingConnectors returns connectors whose to_node == nodeID.
func (s *Store) IncomingConnectors(ctx context.Context, flowchartID, nodeID string) ([]FlowchartConnector, error) {
	all, err := s.ListConnectors(ctx, flowchartID)
	if err != nil {
		return nil, err
	}
	var out []FlowchartConnector
	for _, c := range all {
		if c.ToNode == nodeID {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateRun inserts a new flowchart run in status "queued".
func (s *Store) CreateRun(ctx context.Context, r FlowchartRun) error {
	if r.Status == "" {
		r.Status = "queued"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flowchart_runs (id, flowchart_id, status, initiator) VALUES (?, ?, ?, ?)`,
		r.ID, r.FlowchartID, r.Status, r.Initiator,
	)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// GetRun returns a flowchart run by id, or nil if not found.
func (s *Store) GetRun(ctx context.Context, id string) (*FlowchartRun, error) {
	var r FlowchartRun
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, flowchart_id, status, started_at, finished_at, initiator FROM flowchart_runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.FlowchartID, &r.Status, &r.StartedAt, &finished, &r.Initiator)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run %s: %w", id, err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// ListActiveRunIDs returns the ids of every FlowchartRun not yet in a
// terminal status, the set the scheduler reconsiders each tick.
func (s *Store) ListActiveRunIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM flowchart_runs WHERE status NOT IN ('succeeded', 'failed', 'cancelled') ORDER BY started_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list active run ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan active run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateRunStatus transitions a run's status, stamping finished_at when
// the new status is terminal (succeeded, failed, cancelled).
func (s *Store) UpdateRunStatus(ctx context.Context, id, status string) error {
	terminal := status == "succeeded" || status == "failed" || status == "cancelled"
	var err error
	if terminal {
		_, err = s.db.ExecContext(ctx,
			`UPDATE flowchart_runs SET status = ?, finished_at = datetime('now') WHERE id = ?`,
			status, id,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE flowchart_runs SET status = ? WHERE id = ?`,
			status, id,
		)
	}
	if err != nil {
		return fmt.Errorf("store: update run status: %w", err)
	}
	return nil
}

func marshalJSON(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(s string, out *map[string]any) error {
	if s == "" {
		*out = map[string]any{}
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}
