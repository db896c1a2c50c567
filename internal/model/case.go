package model

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"testledger/internal/docstore"
	"testledger/internal/entity"
	"testledger/internal/log"
	"testledger/internal/schema"
	"testledger/internal/storage"
)

// CreateCase allocates a new case inside catalogPage, appends it to the
// catalog's execution order and writes the first version of its page.
func (m *Manager) CreateCase(ctx context.Context, catalogPage, title, description, author string) (*TestCase, error) {
	if err := m.allow(ctx, "create case", RealmCase); err != nil {
		return nil, err
	}
	if catalogPage == RootPage {
		return nil, &entity.InvalidOperationError{
			Op:     "create case",
			Reason: "cases live inside catalogs, not at the root",
		}
	}
	var tc *TestCase
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		if _, err := m.catalogByPageTx(ctx, txn, catalogPage); err != nil {
			return err
		}
		id, err := storage.NextID(txn.Tx, storage.PropNextCaseID)
		if err != nil {
			return err
		}
		page := CasePage(catalogPage, strconv.Itoa(id))

		order, err := m.directCaseCountTx(ctx, txn, catalogPage)
		if err != nil {
			return err
		}

		e, err := m.engine.NewEntity(RealmCase, map[string]schema.Value{
			"id": schema.Text(strconv.Itoa(id)),
		})
		if err != nil {
			return err
		}
		if err := e.SetLifecycle("page_name", schema.Text(page)); err != nil {
			return err
		}
		if err := e.SetLifecycle("exec_order", schema.Int(int64(order))); err != nil {
			return err
		}
		if err := m.engine.InsertTx(ctx, txn, e); err != nil {
			return err
		}

		doc := &docstore.Document{
			Name:    page,
			Time:    txn.Now,
			Author:  author,
			Content: docstore.Compose(title, description),
		}
		if _, err := m.docs.SaveTx(ctx, txn.Tx, doc); err != nil {
			return err
		}
		tc = &TestCase{e}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info(log.CatModel, "created case", "page", tc.PageName(), "author", author)
	return tc, nil
}

// GetCase loads a case by id.
func (m *Manager) GetCase(ctx context.Context, id string) (*TestCase, error) {
	e, err := m.engine.NewEntity(RealmCase, map[string]schema.Value{
		"id": schema.Text(id),
	})
	if err != nil {
		return nil, err
	}
	ok, err := m.engine.Load(ctx, e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &entity.NotFoundError{Realm: RealmCase, Keys: e.Keys()}
	}
	return &TestCase{e}, nil
}

// GetCaseByPage loads a case by its page name.
func (m *Manager) GetCaseByPage(ctx context.Context, page string) (*TestCase, error) {
	keys, err := m.engine.ListMatching(ctx, RealmCase, map[string]schema.Value{
		"page_name": schema.Text(page),
	}, true)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no case with page %s", page)
	}
	return m.GetCase(ctx, keys[0]["id"].AsText())
}

func (m *Manager) caseByPageTx(ctx context.Context, txn *entity.Txn, page string) (*TestCase, error) {
	keys, err := m.engine.ListMatchingTx(ctx, txn, RealmCase, map[string]schema.Value{
		"page_name": schema.Text(page),
	}, true)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no case with page %s", page)
	}
	e, err := m.engine.NewEntity(RealmCase, keys[0])
	if err != nil {
		return nil, err
	}
	if _, err := m.engine.LoadTx(ctx, txn, e); err != nil {
		return nil, err
	}
	return &TestCase{e}, nil
}

// DirectCases returns the cases sitting directly inside catalogPage,
// sorted by execution order.
func (m *Manager) DirectCases(ctx context.Context, catalogPage string) ([]*TestCase, error) {
	var cases []*TestCase
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		var err error
		cases, err = m.directCasesTx(ctx, txn, catalogPage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cases, nil
}

func (m *Manager) directCasesTx(ctx context.Context, txn *entity.Txn, catalogPage string) ([]*TestCase, error) {
	all, err := m.casesUnderTx(ctx, txn, catalogPage)
	if err != nil {
		return nil, err
	}
	var direct []*TestCase
	for _, c := range all {
		if IsDirectCasePage(catalogPage, c.PageName()) {
			direct = append(direct, c)
		}
	}
	sortCasesByOrder(direct)
	return direct, nil
}

func (m *Manager) directCaseCountTx(ctx context.Context, txn *entity.Txn, catalogPage string) (int, error) {
	direct, err := m.directCasesTx(ctx, txn, catalogPage)
	if err != nil {
		return 0, err
	}
	return len(direct), nil
}

// DeleteCase removes a case, its page and its per-plan records, and
// closes the ordering gap it leaves behind.
func (m *Manager) DeleteCase(ctx context.Context, tc *TestCase) error {
	if err := m.allow(ctx, "delete case", RealmCase); err != nil {
		return err
	}
	page := tc.PageName()
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		catPage := tc.CatalogPage()
		order, err := m.currentOrderTx(ctx, txn, tc)
		if err != nil {
			return err
		}
		if err := m.engine.DeleteTx(ctx, txn, tc.Entity); err != nil {
			return err
		}
		if err := m.docs.DeleteTx(ctx, txn.Tx, page); err != nil {
			return err
		}
		return m.shiftOrdersTx(ctx, txn, catPage, order, -1)
	})
	if err != nil {
		return err
	}
	log.Info(log.CatModel, "deleted case", "page", page)
	return nil
}

// shiftOrdersTx moves all direct cases of catPage with exec_order
// greater than after by delta.
func (m *Manager) shiftOrdersTx(ctx context.Context, txn *entity.Txn, catPage string, after int64, delta int64) error {
	direct, err := m.directCasesTx(ctx, txn, catPage)
	if err != nil {
		return err
	}
	for _, c := range direct {
		if c.ExecOrder() <= after {
			continue
		}
		if err := setOrderTx(ctx, txn, c, c.ExecOrder()+delta); err != nil {
			return err
		}
	}
	return nil
}

// currentOrderTx reads the case's stored execution order, which may be
// ahead of the caller's copy after other cases shifted, and syncs the
// copy.
func (m *Manager) currentOrderTx(ctx context.Context, txn *entity.Txn, tc *TestCase) (int64, error) {
	fresh, err := m.caseByIDTx(ctx, txn, tc.ID())
	if err != nil {
		return 0, err
	}
	order := fresh.ExecOrder()
	if err := tc.SetInternal("exec_order", schema.Int(order)); err != nil {
		return 0, err
	}
	return order, nil
}

// setOrderTx rewrites a case's execution order in place. Reordering is
// bookkeeping, not an edit, so no change row is written.
func setOrderTx(ctx context.Context, txn *entity.Txn, c *TestCase, order int64) error {
	_, err := txn.Tx.ExecContext(ctx,
		"UPDATE testcase SET exec_order = ? WHERE id = ?",
		order, c.ID(),
	)
	if err != nil {
		return fmt.Errorf("reordering case %s: %w", c.ID(), err)
	}
	return c.SetInternal("exec_order", schema.Int(order))
}

// MoveCaseOrder moves a case to a new position in its catalog's
// execution order, shifting the cases in between. Positions outside the
// valid range are clamped.
func (m *Manager) MoveCaseOrder(ctx context.Context, tc *TestCase, newOrder int64) error {
	if err := m.allow(ctx, "reorder case", RealmCase); err != nil {
		return err
	}
	return m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		catPage := tc.CatalogPage()
		direct, err := m.directCasesTx(ctx, txn, catPage)
		if err != nil {
			return err
		}
		if newOrder < 0 {
			newOrder = 0
		}
		if max := int64(len(direct)) - 1; newOrder > max {
			newOrder = max
		}
		old, err := m.currentOrderTx(ctx, txn, tc)
		if err != nil {
			return err
		}
		if newOrder == old {
			return nil
		}
		for _, c := range direct {
			if c.ID() == tc.ID() {
				continue
			}
			o := c.ExecOrder()
			switch {
			case newOrder < old && o >= newOrder && o < old:
				if err := setOrderTx(ctx, txn, c, o+1); err != nil {
					return err
				}
			case newOrder > old && o > old && o <= newOrder:
				if err := setOrderTx(ctx, txn, c, o-1); err != nil {
					return err
				}
			}
		}
		return setOrderTx(ctx, txn, tc, newOrder)
	})
}

// MoveCase relocates a case into another catalog. The case keeps its id
// and history and its page is renamed. It is inserted at newOrder in the
// destination's execution order, or appended when newOrder is negative
// or past the end. A move within the current catalog is a pure reorder,
// and a no-op when no order is given. With deleteStatuses the case's
// per-plan records and verdict history are dropped; otherwise they
// follow the case under its new page name.
func (m *Manager) MoveCase(ctx context.Context, tc *TestCase, destCatalogPage string, newOrder int, deleteStatuses bool, author string) error {
	if err := m.allow(ctx, "move case", RealmCase); err != nil {
		return err
	}
	if destCatalogPage == tc.CatalogPage() {
		if newOrder < 0 {
			return nil
		}
		return m.MoveCaseOrder(ctx, tc, int64(newOrder))
	}
	oldPage := tc.PageName()
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		if _, err := m.catalogByPageTx(ctx, txn, destCatalogPage); err != nil {
			return err
		}
		oldCat := tc.CatalogPage()
		oldOrder, err := m.currentOrderTx(ctx, txn, tc)
		if err != nil {
			return err
		}
		newPage := CasePage(destCatalogPage, tc.ID())

		destCount, err := m.directCaseCountTx(ctx, txn, destCatalogPage)
		if err != nil {
			return err
		}
		order := int64(destCount)
		if newOrder >= 0 && newOrder < destCount {
			order = int64(newOrder)
			if err := m.shiftOrdersTx(ctx, txn, destCatalogPage, order-1, 1); err != nil {
				return err
			}
		}

		if err := m.docs.RenameTx(ctx, txn.Tx, oldPage, newPage); err != nil {
			return err
		}
		if err := tc.SetLifecycle("page_name", schema.Text(newPage)); err != nil {
			return err
		}
		if err := tc.SetLifecycle("exec_order", schema.Int(order)); err != nil {
			return err
		}
		if _, err := m.engine.SaveChangesTx(ctx, txn, tc.Entity, author, ""); err != nil {
			return err
		}

		if deleteStatuses {
			// Verdicts recorded against the old location no longer apply.
			for _, table := range []string{"testcaseinplan", "testcaseinplan_change", "testcasehistory"} {
				if _, err := txn.Tx.ExecContext(ctx,
					"DELETE FROM "+table+" WHERE id = ?", tc.ID(),
				); err != nil {
					return fmt.Errorf("moving case %s: %w", tc.ID(), err)
				}
			}
		} else {
			// Per-plan records carry the page name too.
			if _, err := txn.Tx.ExecContext(ctx,
				"UPDATE testcaseinplan SET page_name = ? WHERE id = ?",
				newPage, tc.ID(),
			); err != nil {
				return fmt.Errorf("moving case %s: %w", tc.ID(), err)
			}
		}
		return m.shiftOrdersTx(ctx, txn, oldCat, oldOrder, -1)
	})
	if err != nil {
		return err
	}
	log.Info(log.CatModel, "moved case", "from", oldPage, "to", tc.PageName(), "author", author)
	return nil
}

// CloneCase copies a case, custom fields included, into destCatalogPage
// under a fresh id. The clone starts a new page with the source's latest
// content and carries none of the source's history.
func (m *Manager) CloneCase(ctx context.Context, src *TestCase, destCatalogPage, author string) (*TestCase, error) {
	if err := m.allow(ctx, "clone case", RealmCase); err != nil {
		return nil, err
	}
	var clone *TestCase
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		if _, err := m.catalogByPageTx(ctx, txn, destCatalogPage); err != nil {
			return err
		}
		id, err := storage.NextID(txn.Tx, storage.PropNextCaseID)
		if err != nil {
			return err
		}
		page := CasePage(destCatalogPage, strconv.Itoa(id))

		order, err := m.directCaseCountTx(ctx, txn, destCatalogPage)
		if err != nil {
			return err
		}

		// The copy picks up pending values, so stage the fields that must
		// differ before taking it, then roll the source back.
		if err := src.SetLifecycle("page_name", schema.Text(page)); err != nil {
			return err
		}
		if err := src.SetLifecycle("exec_order", schema.Int(int64(order))); err != nil {
			return err
		}
		e, err := m.engine.SaveAsTx(ctx, txn, src.Entity, map[string]schema.Value{
			"id": schema.Text(strconv.Itoa(id)),
		})
		src.DiscardChanges()
		if err != nil {
			return err
		}

		doc, err := m.docs.GetTx(ctx, txn.Tx, src.PageName())
		if err != nil {
			return err
		}
		dup := &docstore.Document{
			Name:    page,
			Time:    txn.Now,
			Author:  author,
			Content: doc.Content,
		}
		if _, err := m.docs.SaveTx(ctx, txn.Tx, dup); err != nil {
			return err
		}
		clone = &TestCase{e}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info(log.CatModel, "cloned case", "from", src.PageName(), "to", clone.PageName(), "author", author)
	return clone, nil
}

func sortCasesByOrder(cases []*TestCase) {
	sort.Slice(cases, func(i, j int) bool {
		if cases[i].ExecOrder() != cases[j].ExecOrder() {
			return cases[i].ExecOrder() < cases[j].ExecOrder()
		}
		return cases[i].ID() < cases[j].ID()
	})
}
