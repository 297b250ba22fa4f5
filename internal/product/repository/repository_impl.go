package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, org_id, code, name, description, uom, standard_cost, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.OrgID,
		product.Code,
		product.Name,
		product.Description,
		product.UoM,
		product.StandardCost,
		product.Active,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, code, name, description, uom, standard_cost, active, created_at, updated_at
		 FROM products WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Find(&items).Error
	return items, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListRequest) ([]domain.Product, error) {
	var items []domain.Product
	stmt := db.WithContext(ctx).Model(&domain.Product{}).Where("org_id = ?", orgID)
	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	if err := stmt.Order("code asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
