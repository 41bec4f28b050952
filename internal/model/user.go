package model

import "time"

// Staff roles.  Participants authenticate separately and carry the
// PARTICIPANT role in their access tokens.
const (
	RoleAdmin       = "ADMIN"
	RoleScanner     = "SCANNER"
	RoleParticipant = "PARTICIPANT"
)

// User represents a staff account (administrator or check-in desk operator)
// as stored in the `users` table.  The json tags are omitted because these
// structs are used internally by the repository layer; handlers define
// their own response types.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – ADMIN or SCANNER.
//	IsActive     – whether the account may sign in.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is not stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
