package graph

import (
	"context"
	"time"

	"github.com/mmdatafocus/admission_billing/middlewares"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Resolver serves the admission ledger schema.
type Resolver struct {
	Tracer trace.Tracer
}

// NewLedgerEntry is the GraphQL input of appendLedgerEntry.
type NewLedgerEntry struct {
	Kind         string
	Amount       decimal.Decimal
	Channel      *string
	OccurredAt   *time.Time
	Note         *string
	AttributedTo *string
}

func (input NewLedgerEntry) toModel() *models.NewLedgerEntry {
	return &models.NewLedgerEntry{
		Kind:         input.Kind,
		Amount:       input.Amount.String(),
		Channel:      utils.DereferencePtr(input.Channel),
		OccurredAt:   input.OccurredAt,
		Note:         utils.DereferencePtr(input.Note),
		AttributedTo: utils.DereferencePtr(input.AttributedTo),
	}
}

func (r *Resolver) Query() QueryResolver       { return &queryResolver{r} }
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

type queryResolver struct{ *Resolver }

func (r *queryResolver) AdmissionLedger(ctx context.Context, admissionId int) (*models.AdmissionLedgerView, error) {
	return middlewares.GetAdmissionLedgerView(ctx, admissionId)
}

func (r *queryResolver) AdmissionLedgers(ctx context.Context, admissionIds []int) ([]*models.AdmissionLedgerView, error) {
	return middlewares.GetAdmissionLedgerViews(ctx, admissionIds)
}

type mutationResolver struct{ *Resolver }

func (r *mutationResolver) AppendLedgerEntry(ctx context.Context, admissionId int, input NewLedgerEntry, requestKey *string) (*models.LedgerMutation, error) {
	ctx, span := r.startSpan(ctx, "graph.appendLedgerEntry", admissionId)
	defer span.End()
	return models.AppendLedgerEntry(ctx, admissionId, input.toModel(), utils.DereferencePtr(requestKey))
}

func (r *mutationResolver) RemoveLedgerEntry(ctx context.Context, admissionId int, transactionId string) (*models.LedgerMutation, error) {
	ctx, span := r.startSpan(ctx, "graph.removeLedgerEntry", admissionId)
	defer span.End()
	return models.RemoveLedgerEntry(ctx, admissionId, transactionId)
}

func (r *Resolver) startSpan(ctx context.Context, name string, admissionId int) (context.Context, trace.Span) {
	tracer := r.Tracer
	if tracer == nil {
		tracer = otel.Tracer("admission-billing/graph")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.Int("admission.id", admissionId)))
}
