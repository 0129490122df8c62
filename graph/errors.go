package graph

import (
	"context"
	"errors"

	"github.com/99designs/gqlgen/graphql"
	"github.com/mmdatafocus/admission_billing/config"
	"github.com/mmdatafocus/admission_billing/utils"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	CodeInvalidAmount = "INVALID_AMOUNT"
	CodeInvalidInput  = "BAD_USER_INPUT"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "LEDGER_CONFLICT"
	CodeUnavailable   = "UNAVAILABLE"
	CodeInternal      = "INTERNAL_SERVER_ERROR"
)

// ErrorCode classifies err the same way the REST handlers pick a status.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, utils.ErrorInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, utils.ErrorInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, utils.ErrorRecordNotFound):
		return CodeNotFound
	case errors.Is(err, utils.ErrorLedgerConflict):
		return CodeConflict
	case errors.Is(err, utils.ErrorAllocationFailure), errors.Is(err, utils.ErrorStoreIO),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// ErrorPresenter adds extensions.code to resolver errors. Internal errors are
// logged and reach the client without their detail.
func ErrorPresenter(ctx context.Context, err error) *gqlerror.Error {
	gqlErr := graphql.DefaultErrorPresenter(ctx, err)
	if _, ok := gqlErr.Extensions["code"]; ok {
		return gqlErr
	}
	code := ErrorCode(err)
	if gqlErr.Extensions == nil {
		gqlErr.Extensions = map[string]interface{}{}
	}
	gqlErr.Extensions["code"] = code
	if code == CodeInternal {
		config.LogError(config.GetLogger(), "graph", "ErrorPresenter", gqlErr.Path.String(), nil, err)
		gqlErr.Message = "internal server error"
	}
	return gqlErr
}
