package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential stores a connection's encrypted login secrets. One-to-one with
// Connection; the payload is only ever decrypted inside the connector runner.
type Credential struct {
	ID               uuid.UUID `db:"id" json:"id"`
	TenantID         uuid.UUID `db:"tenant_id" json:"tenant_id"`
	ConnectionID     uuid.UUID `db:"connection_id" json:"connection_id"`
	EncryptedPayload string    `db:"encrypted_payload" json:"-"`
	PayloadVersion   int       `db:"payload_version" json:"payload_version"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Credential) TableName() string {
	return "payable_credentials"
}

// CredentialPayload is the decrypted shape of a credential blob. Never logged.
type CredentialPayload struct {
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	Extras   map[string]string `json:"extras,omitempty"`
}
