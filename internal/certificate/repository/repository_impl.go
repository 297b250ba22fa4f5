package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/certificate/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *domain.Certificate) error {
	tx := db.WithContext(ctx).Session(&gorm.Session{})
	if err := tx.Omit(clause.Associations).Create(c).Error; err != nil {
		return err
	}
	if len(c.Lines) == 0 {
		return nil
	}
	return tx.Create(c.Lines).Error
}

func (r *repo) Load(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Certificate, error) {
	var c domain.Certificate
	err := db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("id asc")
		}).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, c *domain.Certificate) error {
	tx := db.WithContext(ctx).Omit(clause.Associations).Session(&gorm.Session{})
	if err := tx.Save(c).Error; err != nil {
		return err
	}
	for _, l := range c.Lines {
		if err := tx.Save(l).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Certificate, error) {
	stmt := db.WithContext(ctx).Model(&domain.Certificate{}).Where("org_id = ?", filter.OrgID)
	if filter.BoqID != nil {
		stmt = stmt.Where("boq_id = ?", *filter.BoqID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("id < ?", *filter.Cursor)
	}
	stmt = stmt.Order("id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var items []*domain.Certificate
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindLineCertificateID(ctx context.Context, db *gorm.DB, orgID, lineID snowflake.ID) (snowflake.ID, error) {
	var line domain.Line
	err := db.WithContext(ctx).
		Select("certificate_id").
		Where("org_id = ? AND id = ?", orgID, lineID).
		Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return line.CertificateID, nil
}

func (r *repo) DeleteLine(ctx context.Context, db *gorm.DB, lineID snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", lineID).Delete(&domain.Line{}).Error
}
