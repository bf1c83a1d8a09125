package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/postgres"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

const auditLogsTable = "audit_logs"

type auditRow struct {
	ID          string    `db:"id"`
	ActorUserID *string   `db:"actor_user_id"`
	SubjectType string    `db:"subject_type"`
	SubjectID   string    `db:"subject_id"`
	Action      string    `db:"action"`
	OldValues   []byte    `db:"old_values"`
	NewValues   []byte    `db:"new_values"`
	IPAddress   string    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
	OccurredAt  time.Time `db:"occurred_at"`
}

// AuditAdapter implements the AuditRepository interface.
// audit_logs only ever receives inserts.
type AuditAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewAuditAdapter creates a new audit adapter
func NewAuditAdapter(client *postgres.Client) repositories.AuditRepository {
	return &AuditAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Append inserts one audit entry
func (a *AuditAdapter) Append(ctx context.Context, entry *entities.AuditLogEntry) error {
	oldValues, err := marshalValues(entry.OldValues)
	if err != nil {
		return apperrors.NewInternalError("failed to encode old values", err)
	}
	newValues, err := marshalValues(entry.NewValues)
	if err != nil {
		return apperrors.NewInternalError("failed to encode new values", err)
	}

	record := goqu.Record{
		"id":            entry.ID,
		"actor_user_id": stringPtrValue(entry.ActorUserID),
		"subject_type":  entry.SubjectType,
		"subject_id":    entry.SubjectID,
		"action":        string(entry.Action),
		"old_values":    oldValues,
		"new_values":    newValues,
		"ip_address":    entry.IPAddress,
		"user_agent":    entry.UserAgent,
		"occurred_at":   entry.OccurredAt,
	}

	query, args, err := a.db.Insert(auditLogsTable).Prepared(true).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to append audit entry", err)
	}
	return nil
}

// ListBySubject returns a subject's entries oldest first
func (a *AuditAdapter) ListBySubject(ctx context.Context, subjectType, subjectID string) ([]*entities.AuditLogEntry, error) {
	query, args, err := a.db.From(auditLogsTable).Prepared(true).
		Select(
			"id", "actor_user_id", "subject_type", "subject_id", "action",
			"old_values", "new_values", "ip_address", "user_agent", "occurred_at",
		).
		Where(goqu.Ex{"subject_type": subjectType, "subject_id": subjectID}).
		Order(goqu.C("occurred_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	var rows []auditRow
	if err := a.client.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list audit entries", err)
	}

	entries := make([]*entities.AuditLogEntry, 0, len(rows))
	for _, r := range rows {
		entry := &entities.AuditLogEntry{
			ID:          r.ID,
			ActorUserID: r.ActorUserID,
			SubjectType: r.SubjectType,
			SubjectID:   r.SubjectID,
			Action:      entities.AuditAction(r.Action),
			IPAddress:   r.IPAddress,
			UserAgent:   r.UserAgent,
			OccurredAt:  r.OccurredAt,
		}
		if entry.OldValues, err = unmarshalValues(r.OldValues); err != nil {
			return nil, apperrors.NewInternalError("failed to decode old values", err)
		}
		if entry.NewValues, err = unmarshalValues(r.NewValues); err != nil {
			return nil, apperrors.NewInternalError("failed to decode new values", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func marshalValues(values map[string]interface{}) (interface{}, error) {
	if values == nil {
		return nil, nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func unmarshalValues(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}
