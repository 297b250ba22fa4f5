package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/boq/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Project) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

func (r *repo) LoadAggregate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, forUpdate bool) (*domain.Project, error) {
	stmt := db.WithContext(ctx)
	if forUpdate {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var p domain.Project
	err := stmt.
		Preload("Activities", orderBySequence).
		Preload("Activities.SubActivities", orderBySequence).
		Preload("Activities.SubActivities.AdditionalCosts", func(db *gorm.DB) *gorm.DB {
			return db.Order("id asc")
		}).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func orderBySequence(db *gorm.DB) *gorm.DB {
	return db.Order("sequence asc, id asc")
}

// SaveAggregate writes the root and every node of the tree. New nodes are
// inserted, existing ones overwritten.
func (r *repo) SaveAggregate(ctx context.Context, db *gorm.DB, p *domain.Project) error {
	tx := db.WithContext(ctx).Omit(clause.Associations).Session(&gorm.Session{})
	if err := tx.Save(p).Error; err != nil {
		return err
	}
	for _, a := range p.Activities {
		if err := tx.Save(a).Error; err != nil {
			return err
		}
		for _, sub := range a.SubActivities {
			if err := tx.Save(sub).Error; err != nil {
				return err
			}
			for _, c := range sub.AdditionalCosts {
				if err := tx.Save(c).Error; err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Project, error) {
	var items []*domain.Project
	stmt := db.WithContext(ctx).Model(&domain.Project{}).
		Where("org_id = ?", filter.OrgID)

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("id < ?", *filter.Cursor)
	}

	stmt = stmt.Order("id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

type boqRef struct {
	BoqID snowflake.ID
}

func (r *repo) FindActivityBoqID(ctx context.Context, db *gorm.DB, orgID, activityID snowflake.ID) (snowflake.ID, error) {
	return findBoqID(ctx, db,
		`SELECT boq_id FROM boq_activities WHERE org_id = ? AND id = ?`,
		orgID, activityID,
	)
}

func (r *repo) FindSubActivityBoqID(ctx context.Context, db *gorm.DB, orgID, subID snowflake.ID) (snowflake.ID, error) {
	return findBoqID(ctx, db,
		`SELECT boq_id FROM boq_sub_activities WHERE org_id = ? AND id = ?`,
		orgID, subID,
	)
}

func (r *repo) FindAdditionalCostBoqID(ctx context.Context, db *gorm.DB, orgID, costID snowflake.ID) (snowflake.ID, error) {
	return findBoqID(ctx, db,
		`SELECT s.boq_id
		 FROM boq_additional_costs c
		 JOIN boq_sub_activities s ON s.id = c.sub_activity_id
		 WHERE c.org_id = ? AND c.id = ?`,
		orgID, costID,
	)
}

func findBoqID(ctx context.Context, db *gorm.DB, query string, args ...any) (snowflake.ID, error) {
	var row boqRef
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return 0, err
	}
	if row.BoqID == 0 {
		return 0, domain.ErrNotFound
	}
	return row.BoqID, nil
}

func (r *repo) FindBySaleOrder(ctx context.Context, db *gorm.DB, orgID, orderID snowflake.ID) (*domain.Project, error) {
	return findOne(ctx, db, "org_id = ? AND sale_order_id = ?", orgID, orderID)
}

func (r *repo) FindByPurchaseOrder(ctx context.Context, db *gorm.DB, orgID, orderID snowflake.ID) (*domain.Project, error) {
	return findOne(ctx, db, "org_id = ? AND purchase_order_id = ?", orgID, orderID)
}

func findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Project, error) {
	var p domain.Project
	err := db.WithContext(ctx).Where(where, args...).Order("id asc").Take(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) DeleteActivity(ctx context.Context, db *gorm.DB, activityID snowflake.ID) error {
	tx := db.WithContext(ctx)
	if err := tx.Exec(
		`DELETE FROM boq_additional_costs
		 WHERE sub_activity_id IN (SELECT id FROM boq_sub_activities WHERE activity_id = ?)`,
		activityID,
	).Error; err != nil {
		return err
	}
	if err := tx.Exec(`DELETE FROM boq_sub_activities WHERE activity_id = ?`, activityID).Error; err != nil {
		return err
	}
	return tx.Exec(`DELETE FROM boq_activities WHERE id = ?`, activityID).Error
}

func (r *repo) DeleteSubActivity(ctx context.Context, db *gorm.DB, subID snowflake.ID) error {
	tx := db.WithContext(ctx)
	if err := tx.Exec(`DELETE FROM boq_additional_costs WHERE sub_activity_id = ?`, subID).Error; err != nil {
		return err
	}
	return tx.Exec(`DELETE FROM boq_sub_activities WHERE id = ?`, subID).Error
}

func (r *repo) DeleteAdditionalCost(ctx context.Context, db *gorm.DB, costID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM boq_additional_costs WHERE id = ?`, costID).Error
}

// SubActivityReferenced reports whether any certificate or variation line
// points at one of the given sub-activities.
func (r *repo) SubActivityReferenced(ctx context.Context, db *gorm.DB, subIDs []snowflake.ID) (bool, error) {
	if len(subIDs) == 0 {
		return false, nil
	}
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT
			(SELECT COUNT(*) FROM boq_payment_certificate_lines WHERE sub_activity_id IN ?) +
			(SELECT COUNT(*) FROM boq_variation_lines WHERE target_sub_activity_id IN ?)`,
		subIDs,
		subIDs,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertCostType(ctx context.Context, db *gorm.DB, ct *domain.CostType) error {
	return db.WithContext(ctx).Create(ct).Error
}

func (r *repo) ListCostTypes(ctx context.Context, db *gorm.DB, orgID snowflake.ID, activeOnly bool) ([]domain.CostType, error) {
	var items []domain.CostType
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	if err := stmt.Order("code asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
