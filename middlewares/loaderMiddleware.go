package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/admission_billing/models"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

// Loaders holds the per-request batch loaders.
type Loaders struct {
	ledgerViewLoader *dataloader.Loader[int, *models.AdmissionLedgerView]
}

func NewLoaders() *Loaders {
	ledgerViewReader := &ledgerViewReader{}

	return &Loaders{
		ledgerViewLoader: dataloader.NewBatchedLoader(ledgerViewReader.GetLedgerViews, dataloader.WithWait[int, *models.AdmissionLedgerView](time.Millisecond)),
	}
}

func LoaderMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders()
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// For returns the request's loaders, creating a fresh set for callers
// outside the HTTP middleware chain.
func For(ctx context.Context) *Loaders {
	if loaders, ok := ctx.Value(loadersKey).(*Loaders); ok {
		return loaders
	}
	return NewLoaders()
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}
