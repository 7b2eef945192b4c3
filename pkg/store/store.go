// Package store implements the branched, append-only timeline persistence
// layer over a single SQLite file, grounded in this codebase's hand-written
// raw-SQL repository style (as opposed to a generated ORM client, which
// this deployment target cannot regenerate).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/secret"
)

// Store is the persistence façade over sessions, branches, messages,
// interventions and provider configs. Methods that write several rows run
// inside a single transaction; some updates (UpdateSessionSettings,
// EditMessage, UpsertProviderConfig) read the current row and write it
// back as separate statements.
type Store struct {
	db    *sql.DB
	keyer *secret.Keyer

	// branchLocks approximates the per-branch row lock called for in §4.1:
	// append_message blocks on it, delete_last_message only tries it, so a
	// delete that finds an append in progress surfaces Busy, while an
	// append that arrives during a delete waits for the delete to finish.
	branchLocks sync.Map // branchID string -> *sync.Mutex
}

// New constructs a Store over an already-open database handle.
func New(db *sql.DB, keyer *secret.Keyer) *Store {
	return &Store{db: db, keyer: keyer}
}

func (s *Store) lockFor(branchID string) *sync.Mutex {
	v, _ := s.branchLocks.LoadOrStore(branchID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func nowISO() time.Time {
	return time.Now().UTC()
}

// CreateSessionInput carries the fields supplied by the create command.
type CreateSessionInput struct {
	Title             string
	WorldPreset       string
	TickLabel         string
	PostGenDelaySec   int
	OutputLanguage    string
	TimelineStartISO  string
	TimelineStepValue int
	TimelineStepUnit  config.TimelineStepUnit
}

// CreateSession creates a new session together with its first branch,
// "main", and returns both.
func (s *Store) CreateSession(ctx context.Context, in CreateSessionInput) (*Session, *Branch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	now := nowISO()
	sessionID := uuid.New().String()
	branchID := uuid.New().String()

	if in.OutputLanguage == "" {
		in.OutputLanguage = "en"
	}
	if in.TimelineStepValue <= 0 {
		in.TimelineStepValue = 1
	}
	if in.TimelineStepUnit == "" {
		in.TimelineStepUnit = config.StepMonth
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, title, world_preset, running, tick_label, post_gen_delay_sec,
			active_branch_id, output_language, timeline_start_iso, timeline_step_value,
			timeline_step_unit, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, in.Title, in.WorldPreset, in.TickLabel, in.PostGenDelaySec,
		branchID, in.OutputLanguage, in.TimelineStartISO, in.TimelineStepValue,
		string(in.TimelineStepUnit), now, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("store: insert session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO branches (id, session_id, name, parent_branch_id, fork_from_message_id, is_archived, created_at)
		VALUES (?, ?, 'main', NULL, NULL, 0, ?)`,
		branchID, sessionID, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("store: insert main branch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("store: commit: %w", err)
	}

	return &Session{
			ID: sessionID, Title: in.Title, WorldPreset: in.WorldPreset, Running: false,
			TickLabel: in.TickLabel, PostGenDelaySec: in.PostGenDelaySec, ActiveBranchID: branchID,
			OutputLanguage: in.OutputLanguage, TimelineStartISO: in.TimelineStartISO,
			TimelineStepValue: in.TimelineStepValue, TimelineStepUnit: in.TimelineStepUnit,
			CreatedAt: now, UpdatedAt: now,
		}, &Branch{
			ID: branchID, SessionID: sessionID, Name: "main", IsArchived: false, CreatedAt: now,
		}, nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, world_preset, running, tick_label, post_gen_delay_sec, active_branch_id,
			output_language, timeline_start_iso, timeline_step_value, timeline_step_unit, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var running int
	var unit string
	var activeBranchID sql.NullString
	if err := row.Scan(&sess.ID, &sess.Title, &sess.WorldPreset, &running, &sess.TickLabel,
		&sess.PostGenDelaySec, &activeBranchID, &sess.OutputLanguage, &sess.TimelineStartISO,
		&sess.TimelineStepValue, &unit, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan session: %w", err)
	}
	sess.Running = running != 0
	sess.TimelineStepUnit = config.TimelineStepUnit(unit)
	sess.ActiveBranchID = activeBranchID.String
	return &sess, nil
}

// ListSessions returns up to limit sessions ordered by most recently updated.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, updated_at, running FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var running int
		if err := rows.Scan(&sum.SessionID, &sum.Title, &sum.UpdatedAt, &running); err != nil {
			return nil, fmt.Errorf("store: scan session summary: %w", err)
		}
		sum.Running = running != 0
		out = append(out, sum)
	}
	return out, rows.Err()
}

// UpdateSessionSettings applies a partial patch to the session's tunables.
func (s *Store) UpdateSessionSettings(ctx context.Context, id string, patch SessionSettingsPatch) (*Session, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.TickLabel != nil {
		sess.TickLabel = *patch.TickLabel
	}
	if patch.PostGenDelaySec != nil {
		sess.PostGenDelaySec = *patch.PostGenDelaySec
	}
	if patch.OutputLanguage != nil {
		sess.OutputLanguage = *patch.OutputLanguage
	}
	if patch.TimelineStartISO != nil {
		sess.TimelineStartISO = *patch.TimelineStartISO
	}
	if patch.TimelineStepValue != nil {
		sess.TimelineStepValue = *patch.TimelineStepValue
	}
	if patch.TimelineStepUnit != nil {
		sess.TimelineStepUnit = *patch.TimelineStepUnit
	}
	sess.UpdatedAt = nowISO()

	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET tick_label=?, post_gen_delay_sec=?, output_language=?,
			timeline_start_iso=?, timeline_step_value=?, timeline_step_unit=?, updated_at=?
		WHERE id=?`,
		sess.TickLabel, sess.PostGenDelaySec, sess.OutputLanguage, sess.TimelineStartISO,
		sess.TimelineStepValue, string(sess.TimelineStepUnit), sess.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: update session settings: %w", err)
	}
	return sess, nil
}

// SetRunning flips the session's running flag, used by the Runner to
// reflect state-machine transitions back into persisted state.
func (s *Store) SetRunning(ctx context.Context, id string, running bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET running=?, updated_at=? WHERE id=?`,
		boolToInt(running), nowISO(), id)
	if err != nil {
		return fmt.Errorf("store: set running: %w", err)
	}
	return mustAffect(res)
}

// SwitchActiveBranch updates active_branch_id after validating the target
// branch exists, belongs to the session, and is not archived (I4).
func (s *Store) SwitchActiveBranch(ctx context.Context, sessionID, branchID string) error {
	branch, err := s.GetBranch(ctx, branchID)
	if err != nil {
		return err
	}
	if branch.SessionID != sessionID {
		return ErrNotFound
	}
	if branch.IsArchived {
		return ErrArchived
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET active_branch_id=?, updated_at=? WHERE id=?`,
		branchID, nowISO(), sessionID)
	if err != nil {
		return fmt.Errorf("store: switch branch: %w", err)
	}
	return mustAffect(res)
}

// GetBranch loads one branch by id.
func (s *Store) GetBranch(ctx context.Context, id string) (*Branch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, name, parent_branch_id, fork_from_message_id, is_archived, created_at
		FROM branches WHERE id=?`, id)
	var b Branch
	var parent, fork sql.NullString
	var archived int
	if err := row.Scan(&b.ID, &b.SessionID, &b.Name, &parent, &fork, &archived, &b.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan branch: %w", err)
	}
	if parent.Valid {
		b.ParentBranchID = &parent.String
	}
	if fork.Valid {
		b.ForkFromMessageID = &fork.String
	}
	b.IsArchived = archived != 0
	return &b, nil
}

// ListBranches returns every branch of a session.
func (s *Store) ListBranches(ctx context.Context, sessionID string) ([]Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, name, parent_branch_id, fork_from_message_id, is_archived, created_at
		FROM branches WHERE session_id=? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list branches: %w", err)
	}
	defer rows.Close()

	var out []Branch
	for rows.Next() {
		var b Branch
		var parent, fork sql.NullString
		var archived int
		if err := rows.Scan(&b.ID, &b.SessionID, &b.Name, &parent, &fork, &archived, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan branch: %w", err)
		}
		if parent.Valid {
			b.ParentBranchID = &parent.String
		}
		if fork.Valid {
			b.ForkFromMessageID = &fork.String
		}
		b.IsArchived = archived != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

// nextBranchName auto-generates "branch-N" names unique within the session.
func (s *Store) nextBranchName(ctx context.Context, tx *sql.Tx, sessionID string) (string, error) {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM branches WHERE session_id=?`, sessionID).Scan(&count); err != nil {
		return "", fmt.Errorf("store: count branches: %w", err)
	}
	for n := count; ; n++ {
		name := fmt.Sprintf("branch-%d", n)
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM branches WHERE session_id=? AND name=?`, sessionID, name).Scan(&exists); err != nil {
			return "", fmt.Errorf("store: check branch name: %w", err)
		}
		if exists == 0 {
			return name, nil
		}
	}
}

// ForkBranch implements the copy-on-fork Open Question decision (see
// SPEC_FULL.md): it physically copies every message with seq <= cut_seq
// into a brand-new branch with new ids, so every read path downstream sees
// a dense 1..cut_seq sequence with no "resolve through ancestor" logic.
func (s *Store) ForkBranch(ctx context.Context, sourceBranchID string, fromMessageID *string) (*Branch, error) {
	source, err := s.GetBranch(ctx, sourceBranchID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	cutSeq := -1
	if fromMessageID != nil {
		var seq int
		var branchID string
		err := tx.QueryRowContext(ctx, `SELECT seq, branch_id FROM timeline_messages WHERE id=?`, *fromMessageID).Scan(&seq, &branchID)
		if err == sql.ErrNoRows || (err == nil && branchID != sourceBranchID) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("store: lookup fork point: %w", err)
		}
		cutSeq = seq
	} else {
		var maxSeq sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM timeline_messages WHERE branch_id=?`, sourceBranchID).Scan(&maxSeq); err != nil {
			return nil, fmt.Errorf("store: max seq: %w", err)
		}
		cutSeq = int(maxSeq.Int64) // 0 if NULL, i.e. empty source branch
	}

	name, err := s.nextBranchName(ctx, tx, source.SessionID)
	if err != nil {
		return nil, err
	}

	now := nowISO()
	newBranchID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO branches (id, session_id, name, parent_branch_id, fork_from_message_id, is_archived, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		newBranchID, source.SessionID, name, sourceBranchID, fromMessageID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert forked branch: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, seq, role, content, time_jump_label, model_provider, model_name,
			token_in, token_out, is_user_edited, report_snapshot, created_at
		FROM timeline_messages WHERE branch_id=? AND seq<=? ORDER BY seq ASC`, sourceBranchID, cutSeq)
	if err != nil {
		return nil, fmt.Errorf("store: copy source rows: %w", err)
	}
	type copiedRow struct {
		seq                                                    int
		role, content, jump, provider, model, snapshot         string
		tokenIn, tokenOut                                       sql.NullInt64
		edited                                                  int
		createdAt                                              time.Time
	}
	var copied []copiedRow
	for rows.Next() {
		var r copiedRow
		var origID string
		var jump, provider, model, snapshot sql.NullString
		if err := rows.Scan(&origID, &r.seq, &r.role, &r.content, &jump, &provider, &model,
			&r.tokenIn, &r.tokenOut, &r.edited, &snapshot, &r.createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan source row: %w", err)
		}
		r.jump, r.provider, r.model, r.snapshot = jump.String, provider.String, model.String, snapshot.String
		copied = append(copied, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range copied {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO timeline_messages (id, session_id, branch_id, seq, role, content,
				time_jump_label, model_provider, model_name, token_in, token_out, is_user_edited,
				report_snapshot, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), source.SessionID, newBranchID, r.seq, r.role, r.content,
			r.jump, r.provider, r.model, r.tokenIn, r.tokenOut, r.edited, r.snapshot, r.createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: insert copied message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit fork: %w", err)
	}

	return &Branch{
		ID: newBranchID, SessionID: source.SessionID, Name: name,
		ParentBranchID: &sourceBranchID, ForkFromMessageID: fromMessageID,
		IsArchived: false, CreatedAt: now,
	}, nil
}

// ListTimeline returns up to limit of the most recent messages on branch,
// in ascending seq order. limit<=0 returns the full branch.
func (s *Store) ListTimeline(ctx context.Context, branchID string, limit int) ([]TimelineMessage, error) {
	query := `
		SELECT id, session_id, branch_id, seq, role, content, time_jump_label, model_provider,
			model_name, token_in, token_out, is_user_edited, report_snapshot, created_at
		FROM timeline_messages WHERE branch_id=? ORDER BY seq DESC`
	args := []any{branchID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to ascending seq order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*TimelineMessage, error) {
	var m TimelineMessage
	var jump, provider, model, snapshot sql.NullString
	var tokenIn, tokenOut sql.NullInt64
	var edited int
	if err := r.Scan(&m.ID, &m.SessionID, &m.BranchID, &m.Seq, &m.Role, &m.Content, &jump,
		&provider, &model, &tokenIn, &tokenOut, &edited, &snapshot, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("store: scan message: %w", err)
	}
	m.TimeJumpLabel, m.ModelProvider, m.ModelName, m.ReportSnapshot = jump.String, provider.String, model.String, snapshot.String
	m.IsUserEdited = edited != 0
	if tokenIn.Valid {
		v := int(tokenIn.Int64)
		m.TokenIn = &v
	}
	if tokenOut.Valid {
		v := int(tokenOut.Int64)
		m.TokenOut = &v
	}
	return &m, nil
}

// AppendMessageInput carries the fields supplied by the Runner's Persist step.
type AppendMessageInput struct {
	Role           config.MessageRole
	Content        string
	TimeJumpLabel  string
	ModelProvider  string
	ModelName      string
	TokenIn        *int
	TokenOut       *int
	ReportSnapshot string
}

// AppendMessage computes the next dense seq for branchID under the
// branch's lock and inserts the new row (§4.1).
func (s *Store) AppendMessage(ctx context.Context, branchID string, in AppendMessageInput) (*TimelineMessage, error) {
	lock := s.lockFor(branchID)
	lock.Lock()
	defer lock.Unlock()

	branch, err := s.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM timeline_messages WHERE branch_id=?`, branchID).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("store: max seq: %w", err)
	}
	seq := int(maxSeq.Int64) + 1

	now := nowISO()
	id := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO timeline_messages (id, session_id, branch_id, seq, role, content, time_jump_label,
			model_provider, model_name, token_in, token_out, is_user_edited, report_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, branch.SessionID, branchID, seq, string(in.Role), in.Content, in.TimeJumpLabel,
		in.ModelProvider, in.ModelName, in.TokenIn, in.TokenOut, in.ReportSnapshot, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConflict, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at=? WHERE id=?`, now, branch.SessionID); err != nil {
		return nil, fmt.Errorf("store: touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit append: %w", err)
	}

	return &TimelineMessage{
		ID: id, SessionID: branch.SessionID, BranchID: branchID, Seq: seq, Role: in.Role,
		Content: in.Content, TimeJumpLabel: in.TimeJumpLabel, ModelProvider: in.ModelProvider,
		ModelName: in.ModelName, TokenIn: in.TokenIn, TokenOut: in.TokenOut,
		ReportSnapshot: in.ReportSnapshot, CreatedAt: now,
	}, nil
}

// DeleteLastMessage removes the highest-seq message on branchID. It
// surfaces ErrBusy, rather than blocking, if an append currently holds the
// branch lock — the caller maps that to HTTP 409 per §4.5.
func (s *Store) DeleteLastMessage(ctx context.Context, branchID string) (*int, error) {
	lock := s.lockFor(branchID)
	if !lock.TryLock() {
		return nil, ErrBusy
	}
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM timeline_messages WHERE branch_id=?`, branchID).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("store: max seq: %w", err)
	}
	if !maxSeq.Valid {
		return nil, nil // no messages to delete
	}
	seq := int(maxSeq.Int64)

	if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_messages WHERE branch_id=? AND seq=?`, branchID, seq); err != nil {
		return nil, fmt.Errorf("store: delete last message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit delete: %w", err)
	}
	return &seq, nil
}

// EditMessage patches content/report_snapshot without touching seq, and
// marks the row user-edited.
func (s *Store) EditMessage(ctx context.Context, messageID string, patch MessagePatch) (*TimelineMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, branch_id, seq, role, content, time_jump_label, model_provider,
			model_name, token_in, token_out, is_user_edited, report_snapshot, created_at
		FROM timeline_messages WHERE id=?`, messageID)
	msg, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.ReportSnapshot != nil {
		msg.ReportSnapshot = *patch.ReportSnapshot
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE timeline_messages SET content=?, report_snapshot=?, is_user_edited=1 WHERE id=?`,
		msg.Content, msg.ReportSnapshot, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: edit message: %w", err)
	}
	msg.IsUserEdited = true
	return msg, nil
}

// CreateIntervention enqueues a pending directive against branchID.
func (s *Store) CreateIntervention(ctx context.Context, sessionID, branchID, content string) (*UserIntervention, error) {
	branch, err := s.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if branch.IsArchived {
		return nil, ErrArchived
	}
	now := nowISO()
	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_interventions (id, session_id, branch_id, content, status, created_at, consumed_at)
		VALUES (?, ?, ?, ?, 'pending', ?, NULL)`,
		id, sessionID, branchID, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: create intervention: %w", err)
	}
	return &UserIntervention{
		ID: id, SessionID: sessionID, BranchID: branchID, Content: content,
		Status: config.InterventionPending, CreatedAt: now,
	}, nil
}

// ConsumePendingInterventions atomically marks every pending intervention
// on branchID as consumed and returns them. If the caller's round later
// fails, it must call RequeueInterventions with the returned ids.
func (s *Store) ConsumePendingInterventions(ctx context.Context, branchID string) ([]UserIntervention, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, session_id, branch_id, content, status, created_at, consumed_at
		FROM user_interventions WHERE branch_id=? AND status='pending' ORDER BY created_at ASC`, branchID)
	if err != nil {
		return nil, fmt.Errorf("store: select pending: %w", err)
	}
	var pending []UserIntervention
	for rows.Next() {
		var iv UserIntervention
		var consumedAt sql.NullTime
		var status string
		if err := rows.Scan(&iv.ID, &iv.SessionID, &iv.BranchID, &iv.Content, &status, &iv.CreatedAt, &consumedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan intervention: %w", err)
		}
		iv.Status = config.InterventionStatus(status)
		pending = append(pending, iv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := nowISO()
	for i := range pending {
		if _, err := tx.ExecContext(ctx, `UPDATE user_interventions SET status='consumed', consumed_at=? WHERE id=?`, now, pending[i].ID); err != nil {
			return nil, fmt.Errorf("store: mark consumed: %w", err)
		}
		pending[i].Status = config.InterventionConsumed
		pending[i].ConsumedAt = &now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit consume: %w", err)
	}
	return pending, nil
}

// RequeueInterventions flips previously consumed interventions back to
// pending. This is the compensating update the Runner issues when
// generate/persist fails after consumption, in place of holding the
// consume transaction open across the provider call (see SPEC_FULL.md
// Open Question #3).
func (s *Store) RequeueInterventions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_interventions SET status='pending', consumed_at=NULL
			WHERE id=? AND status='consumed'`, id); err != nil {
			return fmt.Errorf("store: requeue intervention: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit requeue: %w", err)
	}
	return nil
}

// UpsertProviderConfig encrypts apiKeyPlain (if non-empty) and stores the
// per-session provider binding. Plaintext is never persisted (I5).
func (s *Store) UpsertProviderConfig(ctx context.Context, sessionID string, provider config.ProviderType, baseURL string, apiKeyPlain secret.Value, modelName string) (*ProviderConfig, error) {
	box, err := s.keyer.Seal(apiKeyPlain)
	if err != nil {
		return nil, fmt.Errorf("store: seal api key: %w", err)
	}
	now := nowISO()

	existing, err := s.GetProviderConfig(ctx, sessionID)
	if err == nil && !apiKeyPlain.Empty() {
		// caller supplied a new key explicitly; box already reflects it.
		_ = existing
	} else if err == nil && apiKeyPlain.Empty() {
		// preserve the previously sealed key when the caller didn't supply one.
		box = existing.APIKeyEncrypted
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_configs (session_id, provider, base_url, api_key_encrypted, model_name, extra_json, updated_at)
		VALUES (?, ?, ?, ?, ?, '{}', ?)
		ON CONFLICT(session_id) DO UPDATE SET
			provider=excluded.provider, base_url=excluded.base_url,
			api_key_encrypted=excluded.api_key_encrypted, model_name=excluded.model_name, updated_at=excluded.updated_at`,
		sessionID, string(provider), baseURL, box, modelName, now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: upsert provider config: %w", err)
	}
	return s.GetProviderConfig(ctx, sessionID)
}

// SelectModel updates only the model_name of an existing provider config.
func (s *Store) SelectModel(ctx context.Context, sessionID, modelName string) (*ProviderConfig, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE provider_configs SET model_name=?, updated_at=? WHERE session_id=?`,
		modelName, nowISO(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: select model: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return nil, err
	}
	return s.GetProviderConfig(ctx, sessionID)
}

// GetProviderConfig loads the provider binding for a session. The returned
// value never carries plaintext; use DecryptAPIKey to obtain it for an
// outbound provider call.
func (s *Store) GetProviderConfig(ctx context.Context, sessionID string) (*ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, provider, base_url, api_key_encrypted, model_name, extra_json, updated_at
		FROM provider_configs WHERE session_id=?`, sessionID)
	var pc ProviderConfig
	var provider string
	if err := row.Scan(&pc.SessionID, &provider, &pc.BaseURL, &pc.APIKeyEncrypted, &pc.ModelName, &pc.ExtraJSON, &pc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan provider config: %w", err)
	}
	pc.Provider = config.ProviderType(provider)
	return &pc, nil
}

// DecryptAPIKey opens the sealed ciphertext on cfg back to a plaintext
// secret.Value. Returns ErrDecryptFailed-wrapping errors on tamper/wrong key.
func (s *Store) DecryptAPIKey(cfg *ProviderConfig) (secret.Value, error) {
	return s.keyer.Open(cfg.APIKeyEncrypted)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
