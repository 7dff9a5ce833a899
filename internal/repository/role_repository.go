package repository

import (
	"context"

	"github.com/adminkit/session-auth-service/internal/domain"
	"github.com/adminkit/session-auth-service/internal/observability"

	"gorm.io/gorm"
)

type RoleRepository interface {
	FindOrCreateByName(name, description string) (*domain.Role, error)
}

type GormRoleRepository struct{ db *gorm.DB }

func NewRoleRepository(db *gorm.DB) RoleRepository { return &GormRoleRepository{db: db} }

func (r *GormRoleRepository) FindOrCreateByName(name, description string) (*domain.Role, error) {
	role := domain.Role{Name: name, Description: description}
	err := r.db.Where("name = ?", name).FirstOrCreate(&role).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "role", "find_or_create_by_name", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "role", "find_or_create_by_name", "success")
	return &role, nil
}
