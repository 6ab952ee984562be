package core

import (
	"context"

	"github.com/JonMunkholm/credstore/internal/codec"
	"github.com/JonMunkholm/credstore/internal/logging"
	"github.com/JonMunkholm/credstore/internal/query"
)

// Result is the uniform outcome of an inbound operation.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Action  string `json:"action,omitempty"`

	err error
}

// Err returns the error behind a failed Result.
func (r Result) Err() error {
	return r.err
}

// Operations exposes the Service as the inbound operation surface. Every
// failure becomes a failed Result and an Error audit event.
type Operations struct {
	svc *Service
}

func NewOperations(svc *Service) *Operations {
	return &Operations{svc: svc}
}

// Service returns the underlying entity service.
func (o *Operations) Service() *Service {
	return o.svc
}

func (o *Operations) CreateEntity(ctx context.Context, entityType string, data codec.Record) Result {
	rec, err := o.svc.Create(ctx, entityType, data)
	if err != nil {
		return o.fail(ctx, "create", entityType, err)
	}
	return o.ok("create", entityType, rec, "Created")
}

func (o *Operations) GetEntityDetails(ctx context.Context, entityType, id string) Result {
	rec, err := o.svc.FetchWithChildren(ctx, entityType, id)
	if err != nil {
		return o.fail(ctx, "get", entityType, err)
	}
	return o.ok("get", entityType, rec, "")
}

func (o *Operations) ListEntities(ctx context.Context, entityType string, opts query.Options) Result {
	listing, err := o.svc.List(ctx, entityType, opts)
	if err != nil {
		return o.fail(ctx, "list", entityType, err)
	}
	return o.ok("list", entityType, listing, "")
}

func (o *Operations) PatchEntity(ctx context.Context, entityType, id string, partial codec.Record) Result {
	res, err := o.svc.Patch(ctx, entityType, id, partial)
	if err != nil {
		return o.fail(ctx, "patch", entityType, err)
	}
	return o.ok("patch", entityType, res.Record, res.Message)
}

func (o *Operations) DeleteEntityCascade(ctx context.Context, entityType, id string) Result {
	res, err := o.svc.CascadeDelete(ctx, entityType, id)
	if err != nil {
		return o.fail(ctx, "delete", entityType, err)
	}
	msg := "Deleted"
	if len(res.Warnings) > 0 {
		msg = "Deleted with warnings"
	}
	return o.ok("delete", entityType, res, msg)
}

// Reject records a failure caught before the operation ran, such as an
// unreadable request body, and returns its failed Result.
func (o *Operations) Reject(ctx context.Context, op, entityType string, err error) Result {
	return o.fail(ctx, op, entityType, err)
}

func (o *Operations) ok(op, entity string, data any, message string) Result {
	o.svc.metrics.ObserveOperation(op, entity, nil)
	return Result{Success: true, Data: data, Message: message}
}

func (o *Operations) fail(ctx context.Context, op, entity string, err error) Result {
	o.svc.metrics.ObserveOperation(op, entity, err)

	msg := MapError(err)
	logging.FromContext(ctx).Debug("operation failed",
		"operation", op,
		"entity", entity,
		"code", msg.Code,
		"user_message", FormatUserError(err),
	)
	o.svc.audit.Record(ctx, AuditError, err.Error(), map[string]any{
		"operation": op,
		"entity":    entity,
		"code":      msg.Code,
	})

	return Result{
		Success: false,
		Message: msg.Message,
		Code:    msg.Code,
		Action:  msg.Action,
		err:     err,
	}
}
