package graph

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/99designs/gqlgen/graphql"
	"github.com/mmdatafocus/admission_billing/ledger"
	"github.com/mmdatafocus/admission_billing/models"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

type ResolverRoot interface {
	Query() QueryResolver
	Mutation() MutationResolver
}

type QueryResolver interface {
	AdmissionLedger(ctx context.Context, admissionId int) (*models.AdmissionLedgerView, error)
	AdmissionLedgers(ctx context.Context, admissionIds []int) ([]*models.AdmissionLedgerView, error)
}

type MutationResolver interface {
	AppendLedgerEntry(ctx context.Context, admissionId int, input NewLedgerEntry, requestKey *string) (*models.LedgerMutation, error)
	RemoveLedgerEntry(ctx context.Context, admissionId int, transactionId string) (*models.LedgerMutation, error)
}

type Config struct {
	Resolvers ResolverRoot
}

// NewExecutableSchema serves schema.graphqls. Only root fields call
// resolvers; everything below them is read off the loaded models.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	return &executableSchema{resolvers: cfg.Resolvers}
}

type executableSchema struct {
	resolvers ResolverRoot
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, rawArgs map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	ec := &executionContext{OperationContext: opCtx, resolvers: e.resolvers}
	first := true

	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false

		var data graphql.Marshaler
		switch opCtx.Operation.Operation {
		case ast.Query:
			// concurrent so sibling admissionLedger fields share one loader batch
			data = ec.resolveRoot(ctx, "Query", opCtx.Operation.SelectionSet, ec.queryField, true)
		case ast.Mutation:
			data = ec.resolveRoot(ctx, "Mutation", opCtx.Operation.SelectionSet, ec.mutationField, false)
		default:
			return graphql.ErrorResponse(ctx, "unsupported GraphQL operation")
		}
		var buf strings.Builder
		data.MarshalGQL(&buf)
		return &graphql.Response{Data: []byte(buf.String())}
	}
}

type executionContext struct {
	*graphql.OperationContext
	resolvers ResolverRoot
}

type rootResolver func(ctx context.Context, field graphql.CollectedField, args map[string]interface{}) (graphql.Marshaler, error)

// resolveRoot answers the top-level fields, writing them in document order.
// A failing field is reported on its path and resolves to null.
func (ec *executionContext) resolveRoot(ctx context.Context, typeName string, sel ast.SelectionSet, resolve rootResolver, concurrent bool) graphql.Marshaler {
	fields := graphql.CollectFields(ec.OperationContext, sel, []string{typeName})
	values := make([]graphql.Marshaler, len(fields))
	var wg sync.WaitGroup
	for i, field := range fields {
		if field.Name == "__typename" {
			values[i] = graphql.MarshalString(typeName)
			continue
		}
		if !concurrent {
			values[i] = ec.resolveField(ctx, typeName, field, resolve)
			continue
		}
		wg.Add(1)
		go func(i int, field graphql.CollectedField) {
			defer wg.Done()
			values[i] = ec.resolveField(ctx, typeName, field, resolve)
		}(i, field)
	}
	wg.Wait()

	out := &object{}
	for i, field := range fields {
		out.add(field.Alias, values[i])
	}
	return out
}

func (ec *executionContext) resolveField(ctx context.Context, typeName string, field graphql.CollectedField, resolve rootResolver) (ret graphql.Marshaler) {
	args := field.ArgumentMap(ec.Variables)
	ctx = graphql.WithFieldContext(ctx, &graphql.FieldContext{
		Object:     typeName,
		Field:      field,
		Args:       args,
		IsMethod:   true,
		IsResolver: true,
	})
	defer func() {
		if r := recover(); r != nil {
			graphql.AddError(ctx, ec.Recover(ctx, r))
			ret = graphql.Null
		}
	}()

	res, err := ec.ResolverMiddleware(ctx, func(ctx context.Context) (interface{}, error) {
		return resolve(ctx, field, args)
	})
	if err != nil {
		graphql.AddError(ctx, err)
		return graphql.Null
	}
	if m, ok := res.(graphql.Marshaler); ok && m != nil {
		return m
	}
	return graphql.Null
}

func (ec *executionContext) queryField(ctx context.Context, field graphql.CollectedField, args map[string]interface{}) (graphql.Marshaler, error) {
	switch field.Name {
	case "admissionLedger":
		admissionId, err := unmarshalIntArg(args, "admissionId")
		if err != nil {
			return nil, err
		}
		view, err := ec.resolvers.Query().AdmissionLedger(ctx, admissionId)
		if err != nil {
			return nil, err
		}
		return ec.marshalAdmissionLedger(field.Selections, view), nil
	case "admissionLedgers":
		admissionIds, err := unmarshalIntListArg(args, "admissionIds")
		if err != nil {
			return nil, err
		}
		views, err := ec.resolvers.Query().AdmissionLedgers(ctx, admissionIds)
		if err != nil {
			return nil, err
		}
		list := make(graphql.Array, len(views))
		for i, view := range views {
			list[i] = ec.marshalAdmissionLedger(field.Selections, view)
		}
		return list, nil
	case "__schema", "__type":
		return nil, fmt.Errorf("introspection is disabled: %w", utils.ErrorInvalidInput)
	}
	return nil, fmt.Errorf("unknown field Query.%s: %w", field.Name, utils.ErrorInvalidInput)
}

func (ec *executionContext) mutationField(ctx context.Context, field graphql.CollectedField, args map[string]interface{}) (graphql.Marshaler, error) {
	admissionId, err := unmarshalIntArg(args, "admissionId")
	if err != nil {
		return nil, err
	}
	var result *models.LedgerMutation
	switch field.Name {
	case "appendLedgerEntry":
		input, err := unmarshalNewLedgerEntry(args["input"])
		if err != nil {
			return nil, err
		}
		requestKey, err := unmarshalOptionalString(args["requestKey"])
		if err != nil {
			return nil, fmt.Errorf("requestKey: %v: %w", err, utils.ErrorInvalidInput)
		}
		result, err = ec.resolvers.Mutation().AppendLedgerEntry(ctx, admissionId, input, requestKey)
		if err != nil {
			return nil, err
		}
	case "removeLedgerEntry":
		transactionId, err := graphql.UnmarshalID(args["transactionId"])
		if err != nil {
			return nil, fmt.Errorf("transactionId: %v: %w", err, utils.ErrorInvalidInput)
		}
		result, err = ec.resolvers.Mutation().RemoveLedgerEntry(ctx, admissionId, transactionId)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown field Mutation.%s: %w", field.Name, utils.ErrorInvalidInput)
	}
	return ec.marshalLedgerMutation(field.Selections, result), nil
}

/* arguments */

func unmarshalIntArg(args map[string]interface{}, name string) (int, error) {
	n, err := graphql.UnmarshalInt(args[name])
	if err != nil {
		return 0, fmt.Errorf("%s: %v: %w", name, err, utils.ErrorInvalidInput)
	}
	return n, nil
}

func unmarshalIntListArg(args map[string]interface{}, name string) ([]int, error) {
	raw, ok := args[name].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be a list: %w", name, utils.ErrorInvalidInput)
	}
	ids := make([]int, len(raw))
	for i, v := range raw {
		n, err := graphql.UnmarshalInt(v)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %v: %w", name, i, err, utils.ErrorInvalidInput)
		}
		ids[i] = n
	}
	return ids, nil
}

func unmarshalOptionalString(v interface{}) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := graphql.UnmarshalString(v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func unmarshalNewLedgerEntry(v interface{}) (NewLedgerEntry, error) {
	var input NewLedgerEntry
	m, ok := v.(map[string]interface{})
	if !ok {
		return input, fmt.Errorf("input must be an object: %w", utils.ErrorInvalidInput)
	}
	var err error
	if input.Kind, err = graphql.UnmarshalString(m["kind"]); err != nil {
		return input, fmt.Errorf("input.kind: %v: %w", err, utils.ErrorInvalidInput)
	}
	if input.Amount, err = UnmarshalDecimal(m["amount"]); err != nil {
		return input, fmt.Errorf("input.amount: %v: %w", err, utils.ErrorInvalidAmount)
	}
	for key, dst := range map[string]**string{"channel": &input.Channel, "note": &input.Note, "attributedTo": &input.AttributedTo} {
		if *dst, err = unmarshalOptionalString(m[key]); err != nil {
			return input, fmt.Errorf("input.%s: %v: %w", key, err, utils.ErrorInvalidInput)
		}
	}
	if raw := m["occurredAt"]; raw != nil {
		at, err := graphql.UnmarshalTime(raw)
		if err != nil {
			return input, fmt.Errorf("input.occurredAt: %v: %w", err, utils.ErrorInvalidInput)
		}
		input.OccurredAt = &at
	}
	return input, nil
}

/* output */

// object writes its fields in selection order.
type object struct {
	keys   []string
	values []graphql.Marshaler
}

func (o *object) add(key string, value graphql.Marshaler) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
}

func (o *object) MarshalGQL(w io.Writer) {
	io.WriteString(w, "{")
	for i, key := range o.keys {
		if i > 0 {
			io.WriteString(w, ",")
		}
		graphql.MarshalString(key).MarshalGQL(w)
		io.WriteString(w, ":")
		o.values[i].MarshalGQL(w)
	}
	io.WriteString(w, "}")
}

func (ec *executionContext) marshalObject(sel ast.SelectionSet, typeName string, value func(field graphql.CollectedField) graphql.Marshaler) graphql.Marshaler {
	out := &object{}
	for _, field := range graphql.CollectFields(ec.OperationContext, sel, []string{typeName}) {
		if field.Name == "__typename" {
			out.add(field.Alias, graphql.MarshalString(typeName))
			continue
		}
		out.add(field.Alias, value(field))
	}
	return out
}

func optionalString(s string) graphql.Marshaler {
	if s == "" {
		return graphql.Null
	}
	return graphql.MarshalString(s)
}

func (ec *executionContext) marshalAdmissionLedger(sel ast.SelectionSet, v *models.AdmissionLedgerView) graphql.Marshaler {
	if v == nil {
		return graphql.Null
	}
	return ec.marshalObject(sel, "AdmissionLedger", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "admission":
			return ec.marshalAdmission(field.Selections, v.Admission)
		case "transactions":
			return ec.marshalTransactions(field.Selections, v.Transactions)
		case "summary":
			return ec.marshalSummary(field.Selections, v.Summary)
		case "dueInWords":
			return graphql.MarshalString(v.DueInWords)
		case "refundOwed":
			return graphql.MarshalBoolean(v.RefundOwed)
		case "ledgerVersion":
			return graphql.MarshalInt64(v.LedgerVersion)
		}
		return graphql.Null
	})
}

func (ec *executionContext) marshalAdmission(sel ast.SelectionSet, v *models.Admission) graphql.Marshaler {
	if v == nil {
		return graphql.Null
	}
	return ec.marshalObject(sel, "Admission", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "id":
			return graphql.MarshalInt(v.ID)
		case "admissionNumber":
			return graphql.MarshalString(v.AdmissionNumber)
		case "patientName":
			return graphql.MarshalString(v.PatientName)
		case "contactPhone":
			return optionalString(v.ContactPhone)
		case "admittedAt":
			return graphql.MarshalTime(v.AdmittedAt)
		case "dischargedAt":
			if v.DischargedAt == nil {
				return graphql.Null
			}
			return graphql.MarshalTime(*v.DischargedAt)
		case "ledgerVersion":
			return graphql.MarshalInt64(v.LedgerVersion)
		}
		return graphql.Null
	})
}

func (ec *executionContext) marshalTransactions(sel ast.SelectionSet, txs []ledger.Transaction) graphql.Marshaler {
	list := make(graphql.Array, len(txs))
	for i := range txs {
		list[i] = ec.marshalTransaction(sel, txs[i])
	}
	return list
}

func (ec *executionContext) marshalTransaction(sel ast.SelectionSet, v ledger.Transaction) graphql.Marshaler {
	return ec.marshalObject(sel, "LedgerTransaction", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "id":
			return graphql.MarshalID(v.ID)
		case "kind":
			return graphql.MarshalString(strings.ToUpper(v.Kind.String()))
		case "amount":
			return MarshalDecimal(v.Amount)
		case "channel":
			return optionalString(v.Channel)
		case "occurredAt":
			return graphql.MarshalTime(v.OccurredAt)
		case "note":
			return optionalString(v.Note)
		case "attributedTo":
			return optionalString(v.AttributedTo)
		case "position":
			return graphql.MarshalInt64(v.Position)
		}
		return graphql.Null
	})
}

func (ec *executionContext) marshalSummary(sel ast.SelectionSet, v ledger.Summary) graphql.Marshaler {
	return ec.marshalObject(sel, "LedgerSummary", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "billSubtotal":
			return MarshalDecimal(v.BillSubtotal)
		case "collected":
			return MarshalDecimal(v.Collected)
		case "refunded":
			return MarshalDecimal(v.Refunded)
		case "totalCollected":
			return MarshalDecimal(v.TotalCollected)
		case "activeDiscount":
			return MarshalDecimal(v.ActiveDiscount)
		case "netTotal":
			return MarshalDecimal(v.NetTotal)
		case "due":
			return MarshalDecimal(v.Due)
		}
		return graphql.Null
	})
}

func (ec *executionContext) marshalLedgerMutation(sel ast.SelectionSet, v *models.LedgerMutation) graphql.Marshaler {
	if v == nil {
		return graphql.Null
	}
	return ec.marshalObject(sel, "LedgerMutation", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "admissionId":
			return graphql.MarshalInt(v.AdmissionId)
		case "transaction":
			return ec.marshalTransaction(field.Selections, v.Transaction)
		case "transactions":
			return ec.marshalTransactions(field.Selections, v.Transactions)
		case "summary":
			return ec.marshalSummary(field.Selections, v.Summary)
		case "ledgerVersion":
			return graphql.MarshalInt64(v.LedgerVersion)
		case "replayed":
			return graphql.MarshalBoolean(v.Replayed)
		}
		return graphql.Null
	})
}
