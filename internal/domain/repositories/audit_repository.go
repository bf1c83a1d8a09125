package repositories

import (
	"context"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

// AuditRepository is the durable append-only sink for audit entries.
type AuditRepository interface {
	Append(ctx context.Context, entry *entities.AuditLogEntry) error
	ListBySubject(ctx context.Context, subjectType, subjectID string) ([]*entities.AuditLogEntry, error)
}
