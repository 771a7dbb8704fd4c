package reconcile

import (
	"context"

	"github.com/joseph-ayodele/ibansync/internal/entity"
	"github.com/joseph-ayodele/ibansync/internal/rpc"
)

// The engine depends on these interfaces, not on the repository or rpc implementations.
//
//go:generate mockgen -destination=mocks/mock_interface.go -source=interface.go

// CustomerFinder resolves the active customer for a mandate reference and current IBAN.
// It returns common.ErrNotFound when no customer matches.
type CustomerFinder interface {
	FindActive(ctx context.Context, mandateRef, iban string) (*entity.Customer, error)
}

// Updater submits the account change to the remote update service.
type Updater interface {
	Submit(ctx context.Context, req rpc.UpdateRequest) (*rpc.Response, error)
}

// Recorder writes the audit row for an applied update.
type Recorder interface {
	Record(ctx context.Context, customerID int64, actor, category, message string) (*entity.HistoryRecord, error)
}
