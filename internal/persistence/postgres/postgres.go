// Package postgres implements persistence.Store on PostgreSQL using
// pgx/v5, grounded on nevindra-oasis's store/postgres package: an
// externally-owned *pgxpool.Pool injected via constructor, idempotent
// `CREATE TABLE IF NOT EXISTS` Init, and $N-placeholder queries.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// Store implements persistence.Store backed by PostgreSQL. The caller
// creates and closes the pool; Store never owns its lifecycle.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns the pool and is
// responsible for closing it; Store.Close is a no-op by design (closing
// a pool another component still holds a reference to would be wrong).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error { return nil }

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			adapter_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			initial_input TEXT NOT NULL,
			status TEXT NOT NULL,
			round_count INTEGER NOT NULL,
			occurrence_id TEXT NOT NULL,
			termination_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_occurrence ON tasks(occurrence_id)`,
		`CREATE TABLE IF NOT EXISTS thoughts (
			thought_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			occurrence_id TEXT NOT NULL,
			generation TEXT NOT NULL,
			content JSONB NOT NULL,
			state TEXT NOT NULL,
			round INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thoughts_ready ON thoughts(occurrence_id, state, created_at)`,
		`CREATE TABLE IF NOT EXISTS consent_records (
			subject_id TEXT PRIMARY KEY,
			stream TEXT NOT NULL,
			categories JSONB NOT NULL,
			granted_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			attestation_sig BYTEA
		)`,
		`CREATE TABLE IF NOT EXISTS credit_balances (
			subject_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_entries (
			occurrence_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			kind TEXT NOT NULL,
			prev_hash BYTEA,
			entry_hash BYTEA NOT NULL,
			signature BYTEA,
			payload BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (occurrence_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			scope TEXT NOT NULL,
			node_type TEXT NOT NULL,
			node_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			attributes JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (scope, node_type, node_id)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			from_scope TEXT NOT NULL, from_type TEXT NOT NULL, from_id TEXT NOT NULL,
			to_scope TEXT NOT NULL, to_type TEXT NOT NULL, to_id TEXT NOT NULL,
			relationship TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_from ON graph_edges(from_scope, from_type, from_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return cerr.Wrap("postgres.Init", cerr.KindFatal, err)
		}
	}
	return nil
}

// --- tasks ---

func (s *Store) SaveTask(ctx context.Context, task *model.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (task_id, adapter_id, channel_id, subject_id, initial_input, status, round_count, occurrence_id, termination_reason, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (task_id) DO UPDATE SET
			status=excluded.status, round_count=excluded.round_count,
			termination_reason=excluded.termination_reason, updated_at=excluded.updated_at`,
		task.TaskID, task.Origin.AdapterID, task.Origin.ChannelID, task.Origin.SubjectID,
		task.InitialInput, string(task.Status), task.RoundCount, task.OccurrenceID,
		nullableString(task.TerminationReason), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return cerr.Wrap("postgres.SaveTask", cerr.KindFatal, err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	var t model.Task
	var status string
	var termination *string
	err := s.pool.QueryRow(ctx,
		`SELECT task_id, adapter_id, channel_id, subject_id, initial_input, status, round_count, occurrence_id, termination_reason, created_at, updated_at
		 FROM tasks WHERE task_id = $1`, taskID,
	).Scan(&t.TaskID, &t.Origin.AdapterID, &t.Origin.ChannelID, &t.Origin.SubjectID,
		&t.InitialInput, &status, &t.RoundCount, &t.OccurrenceID, &termination, &t.CreatedAt, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap("postgres.GetTask", cerr.KindFatal, err)
	}
	t.Status = model.TaskStatus(status)
	if termination != nil {
		t.TerminationReason = *termination
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, occurrenceID string, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT task_id, adapter_id, channel_id, subject_id, initial_input, status, round_count, occurrence_id, termination_reason, created_at, updated_at
		 FROM tasks WHERE occurrence_id = $1 ORDER BY created_at DESC LIMIT $2`, occurrenceID, limit)
	if err != nil {
		return nil, cerr.Wrap("postgres.ListTasks", cerr.KindFatal, err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		var t model.Task
		var status string
		var termination *string
		if err := rows.Scan(&t.TaskID, &t.Origin.AdapterID, &t.Origin.ChannelID, &t.Origin.SubjectID,
			&t.InitialInput, &status, &t.RoundCount, &t.OccurrenceID, &termination, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, cerr.Wrap("postgres.ListTasks", cerr.KindFatal, err)
		}
		t.Status = model.TaskStatus(status)
		if termination != nil {
			t.TerminationReason = *termination
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.Wrap("postgres.ListTasks", cerr.KindFatal, err)
	}
	return tasks, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// --- thoughts ---

func (s *Store) SaveThought(ctx context.Context, thought *model.Thought) error {
	content, err := json.Marshal(thought.Content)
	if err != nil {
		return cerr.Wrap("postgres.SaveThought", cerr.KindValidation, err)
	}
	var occurrenceID string
	err = s.pool.QueryRow(ctx, `SELECT occurrence_id FROM tasks WHERE task_id = $1`, thought.TaskID).Scan(&occurrenceID)
	if err == pgx.ErrNoRows {
		return cerr.New("postgres.SaveThought", cerr.KindValidation, "task not found: "+thought.TaskID)
	}
	if err != nil {
		return cerr.Wrap("postgres.SaveThought", cerr.KindFatal, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO thoughts (thought_id, task_id, occurrence_id, generation, content, state, round, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (thought_id) DO UPDATE SET content=excluded.content, state=excluded.state, round=excluded.round`,
		thought.ThoughtID, thought.TaskID, occurrenceID, string(thought.Generation), content,
		string(thought.State), thought.Round, thought.CreatedAt,
	)
	if err != nil {
		return cerr.Wrap("postgres.SaveThought", cerr.KindFatal, err)
	}
	return nil
}

func (s *Store) ReadyThoughts(ctx context.Context, occurrenceID string, limit int) ([]*model.Thought, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT thought_id, task_id, generation, content, state, round, created_at
		 FROM thoughts WHERE occurrence_id = $1 AND state = $2 ORDER BY created_at ASC LIMIT $3`,
		occurrenceID, string(model.ThoughtNew), limit,
	)
	if err != nil {
		return nil, cerr.Wrap("postgres.ReadyThoughts", cerr.KindFatal, err)
	}
	defer rows.Close()

	var out []*model.Thought
	for rows.Next() {
		var th model.Thought
		var generation, state string
		var content []byte
		if err := rows.Scan(&th.ThoughtID, &th.TaskID, &generation, &content, &state, &th.Round, &th.CreatedAt); err != nil {
			return nil, cerr.Wrap("postgres.ReadyThoughts", cerr.KindFatal, err)
		}
		th.Generation = model.ThoughtGeneration(generation)
		th.State = model.ThoughtState(state)
		if err := json.Unmarshal(content, &th.Content); err != nil {
			return nil, cerr.Wrap("postgres.ReadyThoughts", cerr.KindFatal, err)
		}
		out = append(out, &th)
	}
	return out, rows.Err()
}

// --- consent ---

func (s *Store) GetConsent(ctx context.Context, subjectID string) (*model.ConsentRecord, bool, error) {
	var rec model.ConsentRecord
	var stream string
	var categories []byte
	err := s.pool.QueryRow(ctx,
		`SELECT subject_id, stream, categories, granted_at, expires_at, revoked_at, attestation_sig
		 FROM consent_records WHERE subject_id = $1`, subjectID,
	).Scan(&rec.SubjectID, &stream, &categories, &rec.GrantedAt, &rec.ExpiresAt, &rec.RevokedAt, &rec.AttestationSig)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cerr.Wrap("postgres.GetConsent", cerr.KindFatal, err)
	}
	rec.Stream = model.ConsentStream(stream)
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &rec.Categories); err != nil {
			return nil, false, cerr.Wrap("postgres.GetConsent", cerr.KindFatal, err)
		}
	}
	return &rec, true, nil
}

func (s *Store) PutConsent(ctx context.Context, record model.ConsentRecord) error {
	categories, err := json.Marshal(record.Categories)
	if err != nil {
		return cerr.Wrap("postgres.PutConsent", cerr.KindValidation, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO consent_records (subject_id, stream, categories, granted_at, expires_at, revoked_at, attestation_sig)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (subject_id) DO UPDATE SET
			stream=excluded.stream, categories=excluded.categories, expires_at=excluded.expires_at,
			revoked_at=excluded.revoked_at, attestation_sig=excluded.attestation_sig`,
		record.SubjectID, string(record.Stream), categories,
		record.GrantedAt, record.ExpiresAt, record.RevokedAt, record.AttestationSig,
	)
	if err != nil {
		return cerr.Wrap("postgres.PutConsent", cerr.KindFatal, err)
	}
	return nil
}

// --- credit ---

func (s *Store) CreditBalance(ctx context.Context, subjectID string) (int, error) {
	var bal int
	err := s.pool.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE subject_id = $1`, subjectID).Scan(&bal)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, cerr.Wrap("postgres.CreditBalance", cerr.KindFatal, err)
	}
	return bal, nil
}

func (s *Store) CreditDebit(ctx context.Context, subjectID string, amount int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return cerr.Wrap("postgres.CreditDebit", cerr.KindFatal, err)
	}
	defer tx.Rollback(ctx)

	var bal int
	err = tx.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE subject_id = $1 FOR UPDATE`, subjectID).Scan(&bal)
	if err != nil && err != pgx.ErrNoRows {
		return cerr.Wrap("postgres.CreditDebit", cerr.KindFatal, err)
	}
	if bal < amount {
		return cerr.New("postgres.CreditDebit", cerr.KindCreditDenied, "insufficient balance")
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO credit_balances (subject_id, balance) VALUES ($1,$2)
		 ON CONFLICT (subject_id) DO UPDATE SET balance=excluded.balance`,
		subjectID, bal-amount)
	if err != nil {
		return cerr.Wrap("postgres.CreditDebit", cerr.KindFatal, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return cerr.Wrap("postgres.CreditDebit", cerr.KindFatal, err)
	}
	return nil
}

// --- audit ---

func (s *Store) AppendAudit(entry model.AuditEntry) error {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_entries (occurrence_id, seq, kind, prev_hash, entry_hash, signature, payload, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.OccurrenceID, entry.Seq, string(entry.Kind), entry.PrevHash, entry.EntryHash,
		entry.Signature, entry.Payload, entry.CreatedAt,
	)
	if err != nil {
		return cerr.Wrap("postgres.AppendAudit", cerr.KindFatal, err)
	}
	return nil
}

func (s *Store) AuditTail(occurrenceID string) (model.AuditEntry, bool, error) {
	ctx := context.Background()
	var e model.AuditEntry
	var kind string
	err := s.pool.QueryRow(ctx,
		`SELECT occurrence_id, seq, kind, prev_hash, entry_hash, signature, payload, created_at
		 FROM audit_entries WHERE occurrence_id = $1 ORDER BY seq DESC LIMIT 1`, occurrenceID,
	).Scan(&e.OccurrenceID, &e.Seq, &kind, &e.PrevHash, &e.EntryHash, &e.Signature, &e.Payload, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return model.AuditEntry{}, false, nil
	}
	if err != nil {
		return model.AuditEntry{}, false, cerr.Wrap("postgres.AuditTail", cerr.KindFatal, err)
	}
	e.Kind = model.AuditKind(kind)
	return e, true, nil
}

func (s *Store) AuditAll(occurrenceID string) ([]model.AuditEntry, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx,
		`SELECT occurrence_id, seq, kind, prev_hash, entry_hash, signature, payload, created_at
		 FROM audit_entries WHERE occurrence_id = $1 ORDER BY seq ASC`, occurrenceID)
	if err != nil {
		return nil, cerr.Wrap("postgres.AuditAll", cerr.KindFatal, err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var kind string
		if err := rows.Scan(&e.OccurrenceID, &e.Seq, &kind, &e.PrevHash, &e.EntryHash, &e.Signature, &e.Payload, &e.CreatedAt); err != nil {
			return nil, cerr.Wrap("postgres.AuditAll", cerr.KindFatal, err)
		}
		e.Kind = model.AuditKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- graph ---

func (s *Store) UpsertNode(ctx context.Context, node model.GraphNode) error {
	attrs, err := json.Marshal(node.Attributes)
	if err != nil {
		return cerr.Wrap("postgres.UpsertNode", cerr.KindValidation, err)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return cerr.Wrap("postgres.UpsertNode", cerr.KindFatal, err)
	}
	defer tx.Rollback(ctx)

	var version int
	err = tx.QueryRow(ctx, `SELECT version FROM graph_nodes WHERE scope=$1 AND node_type=$2 AND node_id=$3 FOR UPDATE`,
		node.ID.Scope, node.ID.NodeType, node.ID.NodeID).Scan(&version)
	if err != nil && err != pgx.ErrNoRows {
		return cerr.Wrap("postgres.UpsertNode", cerr.KindFatal, err)
	}
	version++

	_, err = tx.Exec(ctx,
		`INSERT INTO graph_nodes (scope, node_type, node_id, version, attributes, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (scope, node_type, node_id) DO UPDATE SET
			version=excluded.version, attributes=excluded.attributes, updated_at=excluded.updated_at`,
		node.ID.Scope, node.ID.NodeType, node.ID.NodeID, version, attrs, node.CreatedAt, node.UpdatedAt,
	)
	if err != nil {
		return cerr.Wrap("postgres.UpsertNode", cerr.KindFatal, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return cerr.Wrap("postgres.UpsertNode", cerr.KindFatal, err)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, id model.NodeID) (*model.GraphNode, error) {
	var n model.GraphNode
	var attrs []byte
	err := s.pool.QueryRow(ctx,
		`SELECT scope, node_type, node_id, version, attributes, created_at, updated_at
		 FROM graph_nodes WHERE scope=$1 AND node_type=$2 AND node_id=$3`, id.Scope, id.NodeType, id.NodeID,
	).Scan(&n.ID.Scope, &n.ID.NodeType, &n.ID.NodeID, &n.Version, &attrs, &n.CreatedAt, &n.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap("postgres.GetNode", cerr.KindFatal, err)
	}
	if err := json.Unmarshal(attrs, &n.Attributes); err != nil {
		return nil, cerr.Wrap("postgres.GetNode", cerr.KindFatal, err)
	}
	return &n, nil
}

func (s *Store) DeleteNode(ctx context.Context, id model.NodeID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return cerr.Wrap("postgres.DeleteNode", cerr.KindFatal, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM graph_nodes WHERE scope=$1 AND node_type=$2 AND node_id=$3`, id.Scope, id.NodeType, id.NodeID); err != nil {
		return cerr.Wrap("postgres.DeleteNode", cerr.KindFatal, err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM graph_edges WHERE (from_scope=$1 AND from_type=$2 AND from_id=$3) OR (to_scope=$1 AND to_type=$2 AND to_id=$3)`,
		id.Scope, id.NodeType, id.NodeID); err != nil {
		return cerr.Wrap("postgres.DeleteNode", cerr.KindFatal, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return cerr.Wrap("postgres.DeleteNode", cerr.KindFatal, err)
	}
	return nil
}

func (s *Store) WriteEdge(ctx context.Context, edge model.GraphEdge) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM graph_nodes WHERE scope=$1 AND node_type=$2 AND node_id=$3)
		 AND EXISTS(SELECT 1 FROM graph_nodes WHERE scope=$4 AND node_type=$5 AND node_id=$6)`,
		edge.From.Scope, edge.From.NodeType, edge.From.NodeID,
		edge.To.Scope, edge.To.NodeType, edge.To.NodeID,
	).Scan(&exists)
	if err != nil {
		return cerr.Wrap("postgres.WriteEdge", cerr.KindFatal, err)
	}
	if !exists {
		return cerr.New("postgres.WriteEdge", cerr.KindValidation, "both endpoints must exist")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO graph_edges (from_scope, from_type, from_id, to_scope, to_type, to_id, relationship, weight)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		edge.From.Scope, edge.From.NodeType, edge.From.NodeID,
		edge.To.Scope, edge.To.NodeType, edge.To.NodeID, edge.Relationship, edge.Weight,
	)
	if err != nil {
		return cerr.Wrap("postgres.WriteEdge", cerr.KindFatal, err)
	}
	return nil
}
