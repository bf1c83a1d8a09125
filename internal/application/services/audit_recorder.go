package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/retry"
)

// RedactedValue replaces sensitive values in audit snapshots.
const RedactedValue = "[REDACTED]"

var sensitiveKeyFragments = []string{"password", "token", "secret", "phone", "email"}

// AuditRecorder writes redacted, append-only audit entries
type AuditRecorder struct {
	repo     repositories.AuditRepository
	retryCfg retry.Config
	now      func() time.Time
}

// NewAuditRecorder creates a new audit recorder
func NewAuditRecorder(repo repositories.AuditRepository) *AuditRecorder {
	return &AuditRecorder{
		repo: repo,
		retryCfg: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      200 * time.Millisecond,
			BackoffFactor: 2,
		},
		now: time.Now,
	}
}

// Record appends one entry. Snapshots are redacted before they leave memory.
func (r *AuditRecorder) Record(
	ctx context.Context,
	actor entities.Actor,
	subjectType, subjectID string,
	action entities.AuditAction,
	oldValues, newValues map[string]interface{},
) (*entities.AuditLogEntry, error) {
	entry := &entities.AuditLogEntry{
		ID:          uuid.NewString(),
		ActorUserID: actor.UserID,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Action:      action,
		OldValues:   Redact(oldValues),
		NewValues:   Redact(newValues),
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		OccurredAt:  r.now().UTC(),
	}

	logger := observability.ComponentLogger(ctx, "audit")
	err := retry.DoWithLog(ctx, r.retryCfg, "audit log", logger, func(ctx context.Context) error {
		return r.repo.Append(ctx, entry)
	})
	if err != nil {
		logger.Error().Err(err).
			Str("subject_type", subjectType).
			Str("subject_id", subjectID).
			Str("action", string(action)).
			Msg("failed to append audit entry")
		return nil, err
	}
	return entry, nil
}

// Redact returns a copy of values with sensitive keys masked, descending into
// nested maps.
func Redact(values map[string]interface{}) map[string]interface{} {
	if values == nil {
		return nil
	}
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if isSensitiveKey(k) {
			out[k] = RedactedValue
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}
