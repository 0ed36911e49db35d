package directory

import (
	"time"

	"github.com/google/uuid"
)

// Domain is an Active Directory domain users and groups are synchronized from.
type Domain struct {
	Key                  uuid.UUID  `json:"key"`
	FullyQualifiedName   string     `json:"fully_qualified_name" validate:"required,fqdn,max=255"`
	ShortName            *string    `json:"short_name,omitempty" validate:"omitempty,max=15"`
	ScheduledSyncEnabled bool       `json:"scheduled_sync_enabled"`
	SyncIntervalMinutes  int        `json:"sync_interval_minutes" validate:"gte=0,lte=10080"`
	UserName             *string    `json:"user_name,omitempty" validate:"omitempty,max=100"`
	LastSyncUTC          *time.Time `json:"last_sync_utc,omitempty"`
	Version              int        `json:"version"`
}

type Group struct {
	Key                uuid.UUID `json:"key"`
	DomainKey          uuid.UUID `json:"domain_key" validate:"required"`
	Name               string    `json:"name" validate:"required,max=255"`
	SecurityIdentifier string    `json:"security_identifier" validate:"required,max=184"`
	Description        *string   `json:"description,omitempty" validate:"omitempty,max=255"`
}

// MinSyncIntervalMinutes is the shortest schedule accepted when scheduled
// synchronization is enabled.
const MinSyncIntervalMinutes = 15
