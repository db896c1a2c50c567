package model

import (
	"context"
	"fmt"
	"time"

	"testledger/internal/docstore"
	"testledger/internal/entity"
	"testledger/internal/schema"
	"testledger/internal/storage"
)

// PermissionChecker decides whether the caller may run a mutating
// operation on a realm. A nil error allows it.
type PermissionChecker func(ctx context.Context, op, realm string) error

// Manager owns the tracked realms. All mutating operations run in a
// single transaction and publish entity notifications after commit.
type Manager struct {
	db       *storage.DB
	engine   *entity.Engine
	docs     *docstore.Store
	outcomes Outcomes
	perm     PermissionChecker
}

// NewManager wires the engine, registers the realm hooks and returns the
// manager.
func NewManager(db *storage.DB, registry *schema.Registry, docs *docstore.Store, outcomes Outcomes) *Manager {
	m := &Manager{
		db:       db,
		engine:   entity.NewEngine(db, registry),
		docs:     docs,
		outcomes: outcomes,
	}
	m.engine.RegisterHooks(RealmCase, &caseHooks{m: m})
	m.engine.RegisterHooks(RealmPlan, &planHooks{m: m})
	return m
}

// SetPermissionChecker installs a gate consulted before every mutating
// operation. Without one, everything is allowed.
func (m *Manager) SetPermissionChecker(p PermissionChecker) { m.perm = p }

func (m *Manager) allow(ctx context.Context, op, realm string) error {
	if m.perm == nil {
		return nil
	}
	return m.perm(ctx, op, realm)
}

// Engine exposes the underlying entity engine, mostly for notification
// subscriptions.
func (m *Manager) Engine() *entity.Engine { return m.engine }

// Docs exposes the document store.
func (m *Manager) Docs() *docstore.Store { return m.docs }

// Outcomes returns the configured verdict set.
func (m *Manager) Outcomes() Outcomes { return m.outcomes }

// Close shuts down the notification broker.
func (m *Manager) Close() { m.engine.Close() }

// UpdateContent saves a new version of a catalog's or case's document
// with the given title and description. The page must belong to an
// existing object; the root page is editable too.
func (m *Manager) UpdateContent(ctx context.Context, page, title, description, author string) error {
	realm := RealmCatalog
	if _, ok := EnclosingCatalogPage(page); ok {
		realm = RealmCase
	}
	if err := m.allow(ctx, "update content", realm); err != nil {
		return err
	}
	return m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		if page != RootPage {
			var err error
			if realm == RealmCase {
				_, err = m.caseByPageTx(ctx, txn, page)
			} else {
				_, err = m.catalogByPageTx(ctx, txn, page)
			}
			if err != nil {
				return err
			}
		}
		_, err := m.docs.SaveTx(ctx, txn.Tx, &docstore.Document{
			Name:    page,
			Author:  author,
			Content: docstore.Compose(title, description),
		})
		return err
	})
}

// caseHooks removes a deleted case from every plan.
type caseHooks struct {
	entity.BaseHooks
	m *Manager
}

func (h *caseHooks) PostDelete(ctx context.Context, txn *entity.Txn, e *entity.Entity) error {
	id, err := e.Get("id")
	if err != nil {
		return err
	}
	for _, table := range []string{
		"testcaseinplan_custom", "testcaseinplan_change", "testcaseinplan", "testcasehistory",
	} {
		if _, err := txn.Tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE id = ?", id.AsText()); err != nil {
			return fmt.Errorf("removing case from plans: %w", err)
		}
	}
	return nil
}

// planHooks removes a deleted plan's case records and history.
type planHooks struct {
	entity.BaseHooks
	m *Manager
}

func (h *planHooks) PostDelete(ctx context.Context, txn *entity.Txn, e *entity.Entity) error {
	id, err := e.Get("id")
	if err != nil {
		return err
	}
	for _, table := range []string{
		"testcaseinplan_custom", "testcaseinplan_change", "testcaseinplan", "testcasehistory",
	} {
		if _, err := txn.Tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE planid = ?", id.AsText()); err != nil {
			return fmt.Errorf("clearing plan records: %w", err)
		}
	}
	return nil
}

// text reads a text field, tolerating nulls.
func text(e *entity.Entity, field string) string {
	v, err := e.Get(field)
	if err != nil {
		return ""
	}
	return v.AsText()
}

func intField(e *entity.Entity, field string) int64 {
	v, err := e.Get(field)
	if err != nil {
		return 0
	}
	return v.AsInt()
}

func timeField(e *entity.Entity, field string) time.Time {
	v, err := e.Get(field)
	if err != nil {
		return time.Time{}
	}
	return v.AsTime()
}

// TestCatalog is a container of test cases and sub catalogs.
type TestCatalog struct {
	*entity.Entity
}

func (c *TestCatalog) ID() string       { return text(c.Entity, "id") }
func (c *TestCatalog) PageName() string { return text(c.Entity, "page_name") }

// TestCase is one test, stored inside exactly one catalog.
type TestCase struct {
	*entity.Entity
}

func (c *TestCase) ID() string       { return text(c.Entity, "id") }
func (c *TestCase) PageName() string { return text(c.Entity, "page_name") }
func (c *TestCase) ExecOrder() int64 { return intField(c.Entity, "exec_order") }

// CatalogPage returns the page of the catalog containing the case.
func (c *TestCase) CatalogPage() string {
	page, _ := EnclosingCatalogPage(c.PageName())
	return page
}

// TestPlan is a snapshot or live view of a catalog for one test round.
type TestPlan struct {
	*entity.Entity
}

func (p *TestPlan) ID() string        { return text(p.Entity, "id") }
func (p *TestPlan) CatalogID() string { return text(p.Entity, "catid") }
func (p *TestPlan) PageName() string  { return text(p.Entity, "page_name") }
func (p *TestPlan) Name() string      { return text(p.Entity, "name") }
func (p *TestPlan) Author() string    { return text(p.Entity, "author") }
func (p *TestPlan) Created() time.Time {
	return timeField(p.Entity, "time")
}

// ContainsAll reports whether the plan covers every case of its catalog.
func (p *TestPlan) ContainsAll() bool {
	return intField(p.Entity, "contains_all") != 0
}

// FreezesVersions reports whether the plan pins case document versions.
func (p *TestPlan) FreezesVersions() bool {
	return intField(p.Entity, "freeze_tc_versions") != 0
}

// TestCaseInPlan is the per-plan record of one case: its verdict and,
// for freezing plans, the pinned document version.
type TestCaseInPlan struct {
	*entity.Entity
}

func (c *TestCaseInPlan) CaseID() string     { return text(c.Entity, "id") }
func (c *TestCaseInPlan) PlanID() string     { return text(c.Entity, "planid") }
func (c *TestCaseInPlan) PageName() string   { return text(c.Entity, "page_name") }
func (c *TestCaseInPlan) Status() string     { return text(c.Entity, "status") }
func (c *TestCaseInPlan) PageVersion() int64 { return intField(c.Entity, "page_version") }
