package model

import "time"

// Roles stored in users.role.
const (
    RoleStudent  = "STUDENT"
    RoleLandlord = "LANDLORD"
    RoleAdmin    = "ADMIN"
)

// User represents an application user record as stored in the `users`
// table.  The password hash never leaves the repository layer; handlers
// build their own response types.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role (STUDENT, LANDLORD, ADMIN)
    FullName     string    // users.full_name
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token is stored.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
