package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Settings *config.SettingsHolder
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	settings *config.SettingsHolder
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("sequence.service"),
		genID:    p.GenID,
		settings: p.Settings,
	}
}

func (s *Service) Next(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", domain.ErrInvalidCode
	}

	var number int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq domain.Sequence
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("org_id = ? AND code = ?", orgID, code).
			Take(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seq = domain.Sequence{
				ID:         s.genID.Generate(),
				OrgID:      orgID,
				Code:       code,
				NextNumber: 1,
			}
			if err := tx.Create(&seq).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		number = seq.NextNumber
		return tx.Model(&domain.Sequence{}).
			Where("id = ?", seq.ID).
			Update("next_number", number+1).Error
	})
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", code, err)
	}

	format := s.settings.Get().SequenceFormat(code)
	return fmt.Sprintf("%s%0*d", format.Prefix, format.Padding, number), nil
}
