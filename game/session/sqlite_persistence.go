package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
	"github.com/wricardo/mcp-training/gridduel/game/storage"
)

// SQLitePersistence is the durable tier on top of the schema applied by
// storage.Open.
type SQLitePersistence struct {
	db *sql.DB
}

// NewSQLitePersistence wraps an open database.
func NewSQLitePersistence(db *sql.DB) *SQLitePersistence {
	return &SQLitePersistence{db: db}
}

// errCorruptRow marks a row that was read but cannot be decoded. It is
// returned unwrapped so callers see an internal error rather than an
// unavailable store.
var errCorruptRow = errors.New("corrupt session row")

const sessionColumns = `id, width, height, board, current_turn, status, winner_participant_id,
    winning_line, mode, invitation_accepted, version, created_at, updated_at`

func (p *SQLitePersistence) Get(ctx context.Context, id string) (*engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p == nil || p.db == nil {
		return nil, unavailable(id, "get", errors.New("storage is not configured"))
	}

	row := p.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if errors.Is(err, errCorruptRow) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable(id, "get", err)
	}
	if err := p.loadParticipants(ctx, s); err != nil {
		if errors.Is(err, errCorruptRow) {
			return nil, err
		}
		return nil, unavailable(id, "get", err)
	}
	return s, nil
}

func (p *SQLitePersistence) Put(ctx context.Context, s *engine.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.db == nil {
		return unavailable(s.ID, "put", errors.New("storage is not configured"))
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(s.ID, "put", err)
	}
	defer func() { _ = tx.Rollback() }()

	next := s.Version + 1
	if s.Version == 0 {
		err = insertSession(ctx, tx, s, next)
	} else {
		err = updateSession(ctx, tx, s, next)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable(s.ID, "put", err)
	}
	s.Version = next
	return nil
}

func insertSession(ctx context.Context, tx *sql.Tx, s *engine.Session, version int64) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, s.ID).Scan(&exists)
	if err == nil {
		return alreadyExists(s.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return unavailable(s.ID, "put", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Width, s.Height, encodeBoard(s.Board), string(s.CurrentTurn), string(s.Status),
		s.WinnerParticipantID, encodeLine(s.WinningLine), string(s.Mode), s.InvitationAccepted,
		version, storage.ToMillis(s.CreatedAt), storage.ToMillis(s.UpdatedAt),
	); err != nil {
		return unavailable(s.ID, "put", err)
	}

	for i, part := range s.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (session_id, position, mark, participant_id, display_name, kind) VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, i, string(part.Mark), part.ID, part.DisplayName, string(part.Kind),
		); err != nil {
			return unavailable(s.ID, "put", err)
		}
	}
	return nil
}

// updateSession writes the mutable columns. Participants never change after
// creation.
func updateSession(ctx context.Context, tx *sql.Tx, s *engine.Session, version int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE sessions SET
    board = ?, current_turn = ?, status = ?, winner_participant_id = ?, winning_line = ?,
    invitation_accepted = ?, version = ?, updated_at = ?
WHERE id = ? AND version = ?`,
		encodeBoard(s.Board), string(s.CurrentTurn), string(s.Status), s.WinnerParticipantID,
		encodeLine(s.WinningLine), s.InvitationAccepted, version, storage.ToMillis(s.UpdatedAt),
		s.ID, s.Version,
	)
	if err != nil {
		return unavailable(s.ID, "put", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(s.ID, "put", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, s.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(s.ID)
	}
	if err != nil {
		return unavailable(s.ID, "put", err)
	}
	return staleWrite(s.ID, s.Version)
}

func (p *SQLitePersistence) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.db == nil {
		return unavailable(id, "delete", errors.New("storage is not configured"))
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(id, "delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE session_id = ?`, id); err != nil {
		return unavailable(id, "delete", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return unavailable(id, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(id, "delete", err)
	}
	if n == 0 {
		return notFound(id)
	}
	if err := tx.Commit(); err != nil {
		return unavailable(id, "delete", err)
	}
	return nil
}

func (p *SQLitePersistence) ListByParticipant(ctx context.Context, participantID string) ([]*engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p == nil || p.db == nil {
		return nil, unavailable("", "list", errors.New("storage is not configured"))
	}

	rows, err := p.db.QueryContext(ctx, `SELECT `+prefixed("s.", sessionColumns)+`
FROM sessions s JOIN participants p ON p.session_id = s.id
WHERE p.participant_id = ?
ORDER BY s.created_at DESC, s.id`, participantID)
	if err != nil {
		return nil, unavailable("", "list", err)
	}

	var sessions []*engine.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			if errors.Is(err, errCorruptRow) {
				return nil, err
			}
			return nil, unavailable("", "list", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable("", "list", err)
	}
	rows.Close()

	for _, s := range sessions {
		if err := p.loadParticipants(ctx, s); err != nil {
			if errors.Is(err, errCorruptRow) {
				return nil, err
			}
			return nil, unavailable(s.ID, "list", err)
		}
	}
	return sessions, nil
}

func (p *SQLitePersistence) loadParticipants(ctx context.Context, s *engine.Session) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT mark, participant_id, display_name, kind FROM participants WHERE session_id = ? ORDER BY position`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if i >= len(s.Participants) {
			return fmt.Errorf("%w: session %s has more than two participants", errCorruptRow, s.ID)
		}
		var mark, kind string
		part := &s.Participants[i]
		if err := rows.Scan(&mark, &part.ID, &part.DisplayName, &kind); err != nil {
			return err
		}
		part.Mark = engine.Mark(mark)
		part.Kind = engine.ParticipantKind(kind)
		i++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if i != len(s.Participants) {
		return fmt.Errorf("%w: session %s has %d participants", errCorruptRow, s.ID, i)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*engine.Session, error) {
	var (
		s                         engine.Session
		board, turn, status, mode string
		line                      string
		createdAt, updatedAt      int64
	)
	if err := row.Scan(&s.ID, &s.Width, &s.Height, &board, &turn, &status, &s.WinnerParticipantID,
		&line, &mode, &s.InvitationAccepted, &s.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if s.Board, err = decodeBoard(board, s.Width*s.Height); err != nil {
		return nil, fmt.Errorf("%w: session %s: %w", errCorruptRow, s.ID, err)
	}
	if s.WinningLine, err = decodeLine(line); err != nil {
		return nil, fmt.Errorf("%w: session %s: %w", errCorruptRow, s.ID, err)
	}
	s.CurrentTurn = engine.Mark(turn)
	s.Status = engine.Status(status)
	s.Mode = engine.Mode(mode)
	s.CreatedAt = storage.FromMillis(createdAt)
	s.UpdatedAt = storage.FromMillis(updatedAt)
	return &s, nil
}

// Boards are stored one byte per cell, '.' for empty.
func encodeBoard(board []engine.Mark) string {
	var b strings.Builder
	b.Grow(len(board))
	for _, m := range board {
		if m == engine.Empty {
			b.WriteByte('.')
		} else {
			b.WriteString(string(m))
		}
	}
	return b.String()
}

func decodeBoard(encoded string, cells int) ([]engine.Mark, error) {
	if len(encoded) != cells {
		return nil, fmt.Errorf("board has %d cells, want %d", len(encoded), cells)
	}
	board := make([]engine.Mark, cells)
	for i := 0; i < cells; i++ {
		switch c := encoded[i]; c {
		case '.':
		case 'X':
			board[i] = engine.MarkX
		case 'O':
			board[i] = engine.MarkO
		default:
			return nil, fmt.Errorf("unknown cell %q at %d", c, i)
		}
	}
	return board, nil
}

func encodeLine(line []int) string {
	parts := make([]string, len(line))
	for i, c := range line {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

func decodeLine(encoded string) ([]int, error) {
	if encoded == "" {
		return nil, nil
	}
	parts := strings.Split(encoded, ",")
	line := make([]int, len(parts))
	for i, part := range parts {
		c, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("winning line: %w", err)
		}
		line[i] = c
	}
	return line, nil
}

func prefixed(prefix, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = prefix + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
