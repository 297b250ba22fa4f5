package fixture

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"gorm.io/gorm"
)

// AggregateLoad is one LoadAggregate call seen by LoadRecorder.
type AggregateLoad struct {
	BoqID     snowflake.ID
	ForUpdate bool
	InTx      bool
}

// LoadRecorder wraps the BOQ repository and remembers how aggregates were
// loaded.
type LoadRecorder struct {
	boqdomain.Repository

	mu    sync.Mutex
	loads []AggregateLoad
}

func (r *LoadRecorder) LoadAggregate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, forUpdate bool) (*boqdomain.Project, error) {
	_, inTx := db.Statement.ConnPool.(gorm.TxCommitter)
	r.mu.Lock()
	r.loads = append(r.loads, AggregateLoad{BoqID: id, ForUpdate: forUpdate, InTx: inTx})
	r.mu.Unlock()
	return r.Repository.LoadAggregate(ctx, db, orgID, id, forUpdate)
}

// Reset forgets every recorded load.
func (r *LoadRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = nil
}

func (r *LoadRecorder) Loads() []AggregateLoad {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AggregateLoad(nil), r.loads...)
}
