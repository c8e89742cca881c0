package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/aster/pkg/database"
)

// AutomationMode determines how a connection's bills are collected
type AutomationMode string

const (
	// ModeManual means bills are entered by hand; sync runs are no-ops
	ModeManual AutomationMode = "manual"
	// ModeAutomated means bills are extracted through a scripted browser session
	ModeAutomated AutomationMode = "automated"
)

// Connection links one executive to one external biller portal
type Connection struct {
	ID            uuid.UUID                        `db:"id" json:"id"`
	TenantID      uuid.UUID                        `db:"tenant_id" json:"tenant_id"`
	ExecutiveID   uuid.UUID                        `db:"executive_id" json:"executive_id"`
	AccountTypeID uuid.UUID                        `db:"account_type_id" json:"account_type_id"`
	Name          string                           `db:"name" json:"name"`
	PortalURL     *string                          `db:"portal_url" json:"portal_url,omitempty"`
	LoginURL      *string                          `db:"login_url" json:"login_url,omitempty"`
	Mode          AutomationMode                   `db:"mode" json:"mode"`
	Recipe        database.JSONB[ExtractionRecipe] `db:"recipe" json:"recipe"`
	IsActive      bool                             `db:"is_active" json:"is_active"`
	LastSyncedAt  *time.Time                       `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt     time.Time                        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                        `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Connection) TableName() string {
	return "payable_connections"
}

// EffectiveLoginURL prefers the recipe's login URL, then the connection's,
// then the portal URL.
func (c *Connection) EffectiveLoginURL() string {
	recipe := c.Recipe.GetValue()
	if recipe.LoginURL != "" {
		return recipe.LoginURL
	}
	if c.LoginURL != nil && *c.LoginURL != "" {
		return *c.LoginURL
	}
	if c.PortalURL != nil && *c.PortalURL != "" {
		return *c.PortalURL
	}
	return ""
}
