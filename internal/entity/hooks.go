package entity

import "context"

// Hooks lets a realm participate in the lifecycle of its objects. All
// hooks run inside the operation's transaction; returning an error rolls
// the whole operation back.
type Hooks interface {
	PreInsert(ctx context.Context, txn *Txn, e *Entity) error
	PostInsert(ctx context.Context, txn *Txn, e *Entity) error
	PreSave(ctx context.Context, txn *Txn, e *Entity, changes map[string]Change) error
	PostSave(ctx context.Context, txn *Txn, e *Entity, changes map[string]Change) error
	PreDelete(ctx context.Context, txn *Txn, e *Entity) error
	PostDelete(ctx context.Context, txn *Txn, e *Entity) error
}

// BaseHooks is a no-op Hooks implementation for embedding.
type BaseHooks struct{}

func (BaseHooks) PreInsert(context.Context, *Txn, *Entity) error  { return nil }
func (BaseHooks) PostInsert(context.Context, *Txn, *Entity) error { return nil }
func (BaseHooks) PreSave(context.Context, *Txn, *Entity, map[string]Change) error {
	return nil
}
func (BaseHooks) PostSave(context.Context, *Txn, *Entity, map[string]Change) error {
	return nil
}
func (BaseHooks) PreDelete(context.Context, *Txn, *Entity) error  { return nil }
func (BaseHooks) PostDelete(context.Context, *Txn, *Entity) error { return nil }

var _ Hooks = BaseHooks{}
