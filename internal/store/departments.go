package store

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"brigade/internal/models"
)

type DepartmentRepo struct {
	db *gorm.DB
}

func (r *DepartmentRepo) FindByID(ctx context.Context, id string) (*models.Department, error) {
	var d models.Department
	if err := r.db.Where("id = ?", id).First(&d).Error; err != nil {
		return nil, translate(err, "department %s", id)
	}
	return &d, nil
}

// FindBySlug matches slugs case-insensitively.
func (r *DepartmentRepo) FindBySlug(ctx context.Context, slug string) (*models.Department, error) {
	var d models.Department
	if err := r.db.Where("LOWER(slug) = LOWER(?)", slug).First(&d).Error; err != nil {
		return nil, translate(err, "department %s", slug)
	}
	return &d, nil
}

func (r *DepartmentRepo) ListActive(ctx context.Context) ([]models.Department, error) {
	var depts []models.Department
	if err := r.db.Where("active = ?", true).Order("slug asc").Find(&depts).Error; err != nil {
		return nil, fmt.Errorf("listing departments: %w", err)
	}
	return depts, nil
}

// Upsert inserts d or overwrites the row with the same id.
func (r *DepartmentRepo) Upsert(ctx context.Context, d *models.Department) error {
	var existing models.Department
	err := r.db.Where("id = ?", d.ID).First(&existing).Error
	switch {
	case gorm.IsRecordNotFoundError(err):
		return r.db.Create(d).Error
	case err != nil:
		return fmt.Errorf("loading department %s: %w", d.ID, err)
	}
	d.CreatedAt = existing.CreatedAt
	if err := r.db.Save(d).Error; err != nil {
		return fmt.Errorf("saving department %s: %w", d.ID, err)
	}
	return nil
}
