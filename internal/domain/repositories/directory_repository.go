package repositories

import (
	"context"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
)

// DirectoryRepository reads users, centers and services owned by other subsystems.
type DirectoryRepository interface {
	GetUser(ctx context.Context, id string) (*entities.User, error)
	GetCenter(ctx context.Context, id string) (*entities.Center, error)
	GetService(ctx context.Context, id string) (*entities.Service, error)
}
