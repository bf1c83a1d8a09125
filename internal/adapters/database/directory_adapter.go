package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/repositories"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/postgres"
	apperrors "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/errors"
)

// DirectoryAdapter reads users, centers and services
type DirectoryAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewDirectoryAdapter creates a new directory adapter
func NewDirectoryAdapter(client *postgres.Client) repositories.DirectoryRepository {
	return &DirectoryAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetUser retrieves a user by ID
func (a *DirectoryAdapter) GetUser(ctx context.Context, id string) (*entities.User, error) {
	user := &entities.User{}
	err := a.getByID(ctx, user, "users", id, "id", "name", "email", "phone", "locale")
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetCenter retrieves a center by ID
func (a *DirectoryAdapter) GetCenter(ctx context.Context, id string) (*entities.Center, error) {
	center := &entities.Center{}
	err := a.getByID(ctx, center, "centers", id,
		"id", "name", "address", "phone", "timezone", "scheduling_external_id")
	if err != nil {
		return nil, err
	}
	return center, nil
}

// GetService retrieves a service by ID
func (a *DirectoryAdapter) GetService(ctx context.Context, id string) (*entities.Service, error) {
	service := &entities.Service{}
	err := a.getByID(ctx, service, "services", id, "id", "center_id", "name", "duration_minutes")
	if err != nil {
		return nil, err
	}
	return service, nil
}

func (a *DirectoryAdapter) getByID(ctx context.Context, dest interface{}, table, id string, columns ...interface{}) error {
	query, args, err := a.db.From(table).Prepared(true).
		Select(columns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build query", err)
	}

	err = a.client.DB().GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError(fmt.Sprintf("%s with id %s not found", singular(table), id))
	}
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to get %s", singular(table)), err)
	}
	return nil
}

func singular(table string) string {
	if len(table) > 1 && table[len(table)-1] == 's' {
		return table[:len(table)-1]
	}
	return table
}
