// Package sqlite implements persistence.Store on a single-file embedded
// database using modernc.org/sqlite (pure Go, no cgo), grounded on
// nevindra-oasis's store/sqlite package: one shared connection
// (SetMaxOpenConns(1)) so every goroutine serializes through it and
// SQLITE_BUSY never surfaces from concurrent writers opening independent
// connections.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
)

// Store implements persistence.Store backed by a local sqlite file.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New opens (without yet initializing schema for) a sqlite database at
// path. Pass ":memory:" for an ephemeral store, the idiom tests use.
func New(path string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cerr.Wrap("sqlite.New", cerr.KindFatal, err)
	}
	db.SetMaxOpenConns(1)
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Store{db: db, logger: logger.WithComponent("persistence/sqlite")}, nil
}

// Init creates every table this Store needs, idempotently.
func (s *Store) Init(ctx context.Context) error {
	ddl := []string{
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
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_occurrence ON tasks(occurrence_id)`,
		`CREATE TABLE IF NOT EXISTS thoughts (
			thought_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			occurrence_id TEXT NOT NULL,
			generation TEXT NOT NULL,
			content TEXT NOT NULL,
			state TEXT NOT NULL,
			round INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thoughts_ready ON thoughts(occurrence_id, state, created_at)`,
		`CREATE TABLE IF NOT EXISTS consent_records (
			subject_id TEXT PRIMARY KEY,
			stream TEXT NOT NULL,
			categories TEXT NOT NULL,
			granted_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			revoked_at TEXT,
			attestation_sig BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS credit_balances (
			subject_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_entries (
			occurrence_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			prev_hash BLOB,
			entry_hash BLOB NOT NULL,
			signature BLOB,
			payload BLOB NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (occurrence_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			scope TEXT NOT NULL,
			node_type TEXT NOT NULL,
			node_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			attributes TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (scope, node_type, node_id)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			from_scope TEXT NOT NULL, from_type TEXT NOT NULL, from_id TEXT NOT NULL,
			to_scope TEXT NOT NULL, to_type TEXT NOT NULL, to_id TEXT NOT NULL,
			relationship TEXT NOT NULL,
			weight REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_from ON graph_edges(from_scope, from_type, from_id)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return cerr.Wrap("sqlite.Init", cerr.KindFatal, fmt.Errorf("%s: %w", stmt, err))
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- tasks ---

func (s *Store) SaveTask(ctx context.Context, task *model.Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, adapter_id, channel_id, subject_id, initial_input, status, round_count, occurrence_id, termination_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET
			status=excluded.status, round_count=excluded.round_count,
			termination_reason=excluded.termination_reason, updated_at=excluded.updated_at`,
		task.TaskID, task.Origin.AdapterID, task.Origin.ChannelID, task.Origin.SubjectID,
		task.InitialInput, string(task.Status), task.RoundCount, task.OccurrenceID,
		task.TerminationReason, task.CreatedAt.Format(timeFormat), task.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return cerr.Wrap("sqlite.SaveTask", cerr.KindFatal, err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT task_id, adapter_id, channel_id, subject_id, initial_input, status, round_count, occurrence_id, termination_reason, created_at, updated_at
		 FROM tasks WHERE task_id = ?`, taskID)
	return scanTask(row)
}

func (s *Store) ListTasks(ctx context.Context, occurrenceID string, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, adapter_id, channel_id, subject_id, initial_input, status, round_count, occurrence_id, termination_reason, created_at, updated_at
		 FROM tasks WHERE occurrence_id = ? ORDER BY created_at DESC LIMIT ?`, occurrenceID, limit)
	if err != nil {
		return nil, cerr.Wrap("sqlite.ListTasks", cerr.KindFatal, err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		var t model.Task
		var status string
		var termination sql.NullString
		var created, updated string
		if err := rows.Scan(&t.TaskID, &t.Origin.AdapterID, &t.Origin.ChannelID, &t.Origin.SubjectID,
			&t.InitialInput, &status, &t.RoundCount, &t.OccurrenceID, &termination, &created, &updated); err != nil {
			return nil, cerr.Wrap("sqlite.ListTasks", cerr.KindFatal, err)
		}
		t.Status = model.TaskStatus(status)
		t.TerminationReason = termination.String
		t.CreatedAt = mustParseTime(created)
		t.UpdatedAt = mustParseTime(updated)
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.Wrap("sqlite.ListTasks", cerr.KindFatal, err)
	}
	return tasks, nil
}

func scanTask(row *sql.Row) (*model.Task, error) {
	var t model.Task
	var status string
	var termination sql.NullString
	var created, updated string
	err := row.Scan(&t.TaskID, &t.Origin.AdapterID, &t.Origin.ChannelID, &t.Origin.SubjectID,
		&t.InitialInput, &status, &t.RoundCount, &t.OccurrenceID, &termination, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap("sqlite.scanTask", cerr.KindFatal, err)
	}
	t.Status = model.TaskStatus(status)
	t.TerminationReason = termination.String
	t.CreatedAt = mustParseTime(created)
	t.UpdatedAt = mustParseTime(updated)
	return &t, nil
}

// --- thoughts ---

func (s *Store) SaveThought(ctx context.Context, thought *model.Thought) error {
	content, err := json.Marshal(thought.Content)
	if err != nil {
		return cerr.Wrap("sqlite.SaveThought", cerr.KindValidation, err)
	}
	occurrenceID, err := s.occurrenceForTask(ctx, thought.TaskID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO thoughts (thought_id, task_id, occurrence_id, generation, content, state, round, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(thought_id) DO UPDATE SET content=excluded.content, state=excluded.state, round=excluded.round`,
		thought.ThoughtID, thought.TaskID, occurrenceID, string(thought.Generation), string(content),
		string(thought.State), thought.Round, thought.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return cerr.Wrap("sqlite.SaveThought", cerr.KindFatal, err)
	}
	return nil
}

func (s *Store) occurrenceForTask(ctx context.Context, taskID string) (string, error) {
	var occ string
	err := s.db.QueryRowContext(ctx, `SELECT occurrence_id FROM tasks WHERE task_id = ?`, taskID).Scan(&occ)
	if err == sql.ErrNoRows {
		return "", cerr.New("sqlite.occurrenceForTask", cerr.KindValidation, "task not found: "+taskID)
	}
	if err != nil {
		return "", cerr.Wrap("sqlite.occurrenceForTask", cerr.KindFatal, err)
	}
	return occ, nil
}

// ReadyThoughts returns up to limit thoughts in the "new" state for
// occurrenceID, oldest first.
func (s *Store) ReadyThoughts(ctx context.Context, occurrenceID string, limit int) ([]*model.Thought, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thought_id, task_id, generation, content, state, round, created_at
		 FROM thoughts WHERE occurrence_id = ? AND state = ? ORDER BY created_at ASC LIMIT ?`,
		occurrenceID, string(model.ThoughtNew), limit,
	)
	if err != nil {
		return nil, cerr.Wrap("sqlite.ReadyThoughts", cerr.KindFatal, err)
	}
	defer rows.Close()

	var out []*model.Thought
	for rows.Next() {
		var th model.Thought
		var generation, state, created, content string
		if err := rows.Scan(&th.ThoughtID, &th.TaskID, &generation, &content, &state, &th.Round, &created); err != nil {
			return nil, cerr.Wrap("sqlite.ReadyThoughts", cerr.KindFatal, err)
		}
		th.Generation = model.ThoughtGeneration(generation)
		th.State = model.ThoughtState(state)
		th.CreatedAt = mustParseTime(created)
		if err := json.Unmarshal([]byte(content), &th.Content); err != nil {
			return nil, cerr.Wrap("sqlite.ReadyThoughts", cerr.KindFatal, err)
		}
		out = append(out, &th)
	}
	return out, rows.Err()
}

// --- consent ---

func (s *Store) GetConsent(ctx context.Context, subjectID string) (*model.ConsentRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject_id, stream, categories, granted_at, expires_at, revoked_at, attestation_sig
		 FROM consent_records WHERE subject_id = ?`, subjectID)

	var rec model.ConsentRecord
	var stream, categories, granted, expires string
	var revoked sql.NullString
	var sig []byte
	err := row.Scan(&rec.SubjectID, &stream, &categories, &granted, &expires, &revoked, &sig)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cerr.Wrap("sqlite.GetConsent", cerr.KindFatal, err)
	}
	rec.Stream = model.ConsentStream(stream)
	rec.GrantedAt = mustParseTime(granted)
	rec.ExpiresAt = mustParseTime(expires)
	rec.AttestationSig = sig
	if revoked.Valid {
		t := mustParseTime(revoked.String)
		rec.RevokedAt = &t
	}
	if categories != "" {
		if err := json.Unmarshal([]byte(categories), &rec.Categories); err != nil {
			return nil, false, cerr.Wrap("sqlite.GetConsent", cerr.KindFatal, err)
		}
	}
	return &rec, true, nil
}

func (s *Store) PutConsent(ctx context.Context, record model.ConsentRecord) error {
	categories, err := json.Marshal(record.Categories)
	if err != nil {
		return cerr.Wrap("sqlite.PutConsent", cerr.KindValidation, err)
	}
	var revoked interface{}
	if record.RevokedAt != nil {
		revoked = record.RevokedAt.Format(timeFormat)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO consent_records (subject_id, stream, categories, granted_at, expires_at, revoked_at, attestation_sig)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET
			stream=excluded.stream, categories=excluded.categories, expires_at=excluded.expires_at,
			revoked_at=excluded.revoked_at, attestation_sig=excluded.attestation_sig`,
		record.SubjectID, string(record.Stream), string(categories),
		record.GrantedAt.Format(timeFormat), record.ExpiresAt.Format(timeFormat), revoked, record.AttestationSig,
	)
	if err != nil {
		return cerr.Wrap("sqlite.PutConsent", cerr.KindFatal, err)
	}
	return nil
}

// --- credit ---

func (s *Store) CreditBalance(ctx context.Context, subjectID string) (int, error) {
	var bal int
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM credit_balances WHERE subject_id = ?`, subjectID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, cerr.Wrap("sqlite.CreditBalance", cerr.KindFatal, err)
	}
	return bal, nil
}

func (s *Store) CreditDebit(ctx context.Context, subjectID string, amount int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap("sqlite.CreditDebit", cerr.KindFatal, err)
	}
	defer tx.Rollback()

	var bal int
	err = tx.QueryRowContext(ctx, `SELECT balance FROM credit_balances WHERE subject_id = ?`, subjectID).Scan(&bal)
	if err != nil && err != sql.ErrNoRows {
		return cerr.Wrap("sqlite.CreditDebit", cerr.KindFatal, err)
	}
	if bal < amount {
		return cerr.New("sqlite.CreditDebit", cerr.KindCreditDenied, "insufficient balance")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_balances (subject_id, balance) VALUES (?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET balance=excluded.balance`,
		subjectID, bal-amount)
	if err != nil {
		return cerr.Wrap("sqlite.CreditDebit", cerr.KindFatal, err)
	}
	return wrapCommit("sqlite.CreditDebit", tx.Commit())
}

// --- audit ---

func (s *Store) AppendAudit(entry model.AuditEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_entries (occurrence_id, seq, kind, prev_hash, entry_hash, signature, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.OccurrenceID, entry.Seq, string(entry.Kind), entry.PrevHash, entry.EntryHash,
		entry.Signature, entry.Payload, entry.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return cerr.Wrap("sqlite.AppendAudit", cerr.KindFatal, err)
	}
	return nil
}

func (s *Store) AuditTail(occurrenceID string) (model.AuditEntry, bool, error) {
	row := s.db.QueryRow(
		`SELECT occurrence_id, seq, kind, prev_hash, entry_hash, signature, payload, created_at
		 FROM audit_entries WHERE occurrence_id = ? ORDER BY seq DESC LIMIT 1`, occurrenceID)
	entry, err := scanAudit(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.AuditEntry{}, false, nil
		}
		return model.AuditEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) AuditAll(occurrenceID string) ([]model.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT occurrence_id, seq, kind, prev_hash, entry_hash, signature, payload, created_at
		 FROM audit_entries WHERE occurrence_id = ? ORDER BY seq ASC`, occurrenceID)
	if err != nil {
		return nil, cerr.Wrap("sqlite.AuditAll", cerr.KindFatal, err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var kind, created string
		if err := rows.Scan(&e.OccurrenceID, &e.Seq, &kind, &e.PrevHash, &e.EntryHash, &e.Signature, &e.Payload, &created); err != nil {
			return nil, cerr.Wrap("sqlite.AuditAll", cerr.KindFatal, err)
		}
		e.Kind = model.AuditKind(kind)
		e.CreatedAt = mustParseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanAudit(row *sql.Row) (model.AuditEntry, error) {
	var e model.AuditEntry
	var kind, created string
	err := row.Scan(&e.OccurrenceID, &e.Seq, &kind, &e.PrevHash, &e.EntryHash, &e.Signature, &e.Payload, &created)
	if err != nil {
		return model.AuditEntry{}, err
	}
	e.Kind = model.AuditKind(kind)
	e.CreatedAt = mustParseTime(created)
	return e, nil
}

// --- graph ---

func (s *Store) UpsertNode(ctx context.Context, node model.GraphNode) error {
	attrs, err := json.Marshal(node.Attributes)
	if err != nil {
		return cerr.Wrap("sqlite.UpsertNode", cerr.KindValidation, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap("sqlite.UpsertNode", cerr.KindFatal, err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx, `SELECT version FROM graph_nodes WHERE scope=? AND node_type=? AND node_id=?`,
		node.ID.Scope, node.ID.NodeType, node.ID.NodeID).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return cerr.Wrap("sqlite.UpsertNode", cerr.KindFatal, err)
	}
	version++

	_, err = tx.ExecContext(ctx,
		`INSERT INTO graph_nodes (scope, node_type, node_id, version, attributes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scope, node_type, node_id) DO UPDATE SET
			version=excluded.version, attributes=excluded.attributes, updated_at=excluded.updated_at`,
		node.ID.Scope, node.ID.NodeType, node.ID.NodeID, version, string(attrs),
		node.CreatedAt.Format(timeFormat), node.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return cerr.Wrap("sqlite.UpsertNode", cerr.KindFatal, err)
	}
	return wrapCommit("sqlite.UpsertNode", tx.Commit())
}

func (s *Store) GetNode(ctx context.Context, id model.NodeID) (*model.GraphNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT scope, node_type, node_id, version, attributes, created_at, updated_at
		 FROM graph_nodes WHERE scope=? AND node_type=? AND node_id=?`, id.Scope, id.NodeType, id.NodeID)

	var n model.GraphNode
	var attrs, created, updated string
	err := row.Scan(&n.ID.Scope, &n.ID.NodeType, &n.ID.NodeID, &n.Version, &attrs, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap("sqlite.GetNode", cerr.KindFatal, err)
	}
	if err := json.Unmarshal([]byte(attrs), &n.Attributes); err != nil {
		return nil, cerr.Wrap("sqlite.GetNode", cerr.KindFatal, err)
	}
	n.CreatedAt = mustParseTime(created)
	n.UpdatedAt = mustParseTime(updated)
	return &n, nil
}

func (s *Store) DeleteNode(ctx context.Context, id model.NodeID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap("sqlite.DeleteNode", cerr.KindFatal, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE scope=? AND node_type=? AND node_id=?`, id.Scope, id.NodeType, id.NodeID); err != nil {
		return cerr.Wrap("sqlite.DeleteNode", cerr.KindFatal, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM graph_edges WHERE (from_scope=? AND from_type=? AND from_id=?) OR (to_scope=? AND to_type=? AND to_id=?)`,
		id.Scope, id.NodeType, id.NodeID, id.Scope, id.NodeType, id.NodeID); err != nil {
		return cerr.Wrap("sqlite.DeleteNode", cerr.KindFatal, err)
	}
	return wrapCommit("sqlite.DeleteNode", tx.Commit())
}

func (s *Store) WriteEdge(ctx context.Context, edge model.GraphEdge) error {
	for _, end := range []model.NodeID{edge.From, edge.To} {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM graph_nodes WHERE scope=? AND node_type=? AND node_id=?`,
			end.Scope, end.NodeType, end.NodeID).Scan(&exists)
		if err == sql.ErrNoRows {
			return cerr.New("sqlite.WriteEdge", cerr.KindValidation, "both endpoints must exist")
		}
		if err != nil {
			return cerr.Wrap("sqlite.WriteEdge", cerr.KindFatal, err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_edges (from_scope, from_type, from_id, to_scope, to_type, to_id, relationship, weight)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		edge.From.Scope, edge.From.NodeType, edge.From.NodeID,
		edge.To.Scope, edge.To.NodeType, edge.To.NodeID, edge.Relationship, edge.Weight,
	)
	if err != nil {
		return cerr.Wrap("sqlite.WriteEdge", cerr.KindFatal, err)
	}
	return nil
}
