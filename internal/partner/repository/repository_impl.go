package repository

import (
	"github.com/smallbiznis/boqledger/internal/partner/domain"
	"github.com/smallbiznis/boqledger/pkg/repository"
	"gorm.io/gorm"
)

func Provide(db *gorm.DB) repository.Repository[domain.Partner] {
	return repository.ProvideStore[domain.Partner](db)
}
