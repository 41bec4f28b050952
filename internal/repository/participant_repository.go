package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/conference-checkin/internal/model"
)

// ParticipantRepo persists participants.  Identity columns (display_id,
// verification_token) are written by Create only; no update statement in
// this file touches them.
type ParticipantRepo struct {
	db *sql.DB
}

// NewParticipantRepo returns a ParticipantRepo bound to db.
func NewParticipantRepo(db *sql.DB) *ParticipantRepo { return &ParticipantRepo{db: db} }

const participantColumns = `id, display_id, verification_token, name, email, organization,
	phone, country, participant_type, password_hash, is_active, verified_at, created_at, updated_at`

var participantKeys = map[string]error{
	"uq_participants_email":              ErrEmailExists,
	"uq_participants_display_id":         ErrDisplayIDTaken,
	"uq_participants_verification_token": ErrTokenTaken,
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*model.Participant, error) {
	var (
		p                     model.Participant
		phone, country, ptype sql.NullString
		verifiedAt            sql.NullTime
	)
	err := row.Scan(&p.ID, &p.DisplayID, &p.VerificationToken, &p.Name, &p.Email, &p.Organization,
		&phone, &country, &ptype, &p.PasswordHash, &p.IsActive, &verifiedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Phone = nullString(phone)
	p.Country = nullString(country)
	p.ParticipantType = nullString(ptype)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		p.VerifiedAt = &t
	}
	return &p, nil
}

// Create inserts p and fills in its ID and timestamps.  Uniqueness
// violations come back as ErrEmailExists, ErrDisplayIDTaken or
// ErrTokenTaken so the registry can decide whether to re-roll.
func (r *ParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	const q = `INSERT INTO participants (display_id, verification_token, name, email, organization,
		phone, country, participant_type, password_hash, is_active) VALUES (?,?,?,?,?,?,?,?,?,?)`
	res, err := r.db.ExecContext(ctx, q, p.DisplayID, p.VerificationToken, p.Name, p.Email, p.Organization,
		p.Phone, p.Country, p.ParticipantType, p.PasswordHash, p.IsActive)
	if err != nil {
		if mapped := mapDuplicate(err, participantKeys); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (r *ParticipantRepo) getOne(ctx context.Context, where string, arg any) (*model.Participant, error) {
	q := "SELECT " + participantColumns + " FROM participants WHERE " + where + " LIMIT 1"
	p, err := scanParticipant(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	return p, err
}

// GetByID returns the participant with the given id.
func (r *ParticipantRepo) GetByID(ctx context.Context, id uint64) (*model.Participant, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByDisplayID matches the display id case-insensitively after trimming.
func (r *ParticipantRepo) GetByDisplayID(ctx context.Context, displayID string) (*model.Participant, error) {
	return r.getOne(ctx, "display_id = ?", strings.ToUpper(strings.TrimSpace(displayID)))
}

// GetByToken looks a participant up by raw verification token.
func (r *ParticipantRepo) GetByToken(ctx context.Context, token string) (*model.Participant, error) {
	return r.getOne(ctx, "verification_token = ?", strings.TrimSpace(token))
}

// GetByEmail looks a participant up by normalised email.
func (r *ParticipantRepo) GetByEmail(ctx context.Context, email string) (*model.Participant, error) {
	return r.getOne(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

// GetMany returns the participants whose ids appear in ids, in id order.
// Unknown ids are simply absent from the result.
func (r *ParticipantRepo) GetMany(ctx context.Context, ids []uint64) ([]model.Participant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := "SELECT " + participantColumns + " FROM participants WHERE id IN (" + placeholders(len(ids)) + ") ORDER BY id"
	rows, err := r.db.QueryContext(ctx, q, uint64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateProfile replaces the editable profile columns.
func (r *ParticipantRepo) UpdateProfile(ctx context.Context, id uint64, p model.Profile) error {
	const q = `UPDATE participants SET name=?, email=?, organization=?, phone=?, country=?, participant_type=?
		WHERE id=?`
	res, err := r.db.ExecContext(ctx, q, p.Name, p.Email, p.Organization, p.Phone, p.Country, p.ParticipantType, id)
	if err != nil {
		if mapped := mapDuplicate(err, participantKeys); mapped != err {
			return mapped
		}
		return fmt.Errorf("update participant: %w", err)
	}
	return r.requireRow(ctx, res, id)
}

// SetActive flips the is_active gate.  History is never deleted.
func (r *ParticipantRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.db.ExecContext(ctx, "UPDATE participants SET is_active=? WHERE id=?", active, id)
	if err != nil {
		return fmt.Errorf("set participant active: %w", err)
	}
	return r.requireRow(ctx, res, id)
}

// MarkVerified stamps verified_at once; later calls keep the first value.
func (r *ParticipantRepo) MarkVerified(ctx context.Context, id uint64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE participants SET verified_at=? WHERE id=? AND verified_at IS NULL", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("verify participant: %w", err)
	}
	return r.requireRow(ctx, res, id)
}

// requireRow turns "0 rows affected" into ErrParticipantNotFound when the
// row really is missing.  MySQL reports 0 for no-op updates too, so an
// existence check disambiguates.
func (r *ParticipantRepo) requireRow(ctx context.Context, res sql.Result, id uint64) error {
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM participants WHERE id=?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrParticipantNotFound
	}
	return err
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func uint64Args(ids []uint64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
