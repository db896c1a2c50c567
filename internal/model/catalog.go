package model

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"testledger/internal/docstore"
	"testledger/internal/entity"
	"testledger/internal/log"
	"testledger/internal/schema"
	"testledger/internal/storage"
)

// CreateCatalog allocates a new catalog under parentPage, inserts the
// tracked object and writes the first version of its page. parentPage may
// be RootPage or the page of an existing catalog.
func (m *Manager) CreateCatalog(ctx context.Context, parentPage, title, description, author string) (*TestCatalog, error) {
	if err := m.allow(ctx, "create catalog", RealmCatalog); err != nil {
		return nil, err
	}
	if parentPage == "" {
		parentPage = RootPage
	}
	var cat *TestCatalog
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		if parentPage != RootPage {
			if _, err := m.catalogByPageTx(ctx, txn, parentPage); err != nil {
				return err
			}
		}
		id, err := storage.NextID(txn.Tx, storage.PropNextCatalogID)
		if err != nil {
			return err
		}
		page := CatalogPage(parentPage, strconv.Itoa(id))

		e, err := m.engine.NewEntity(RealmCatalog, map[string]schema.Value{
			"id": schema.Text(strconv.Itoa(id)),
		})
		if err != nil {
			return err
		}
		if err := e.SetLifecycle("page_name", schema.Text(page)); err != nil {
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
		cat = &TestCatalog{e}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info(log.CatModel, "created catalog", "page", cat.PageName(), "author", author)
	return cat, nil
}

// GetCatalog loads a catalog by id.
func (m *Manager) GetCatalog(ctx context.Context, id string) (*TestCatalog, error) {
	e, err := m.engine.NewEntity(RealmCatalog, map[string]schema.Value{
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
		return nil, &entity.NotFoundError{Realm: RealmCatalog, Keys: e.Keys()}
	}
	return &TestCatalog{e}, nil
}

// GetCatalogByPage loads a catalog by its page name.
func (m *Manager) GetCatalogByPage(ctx context.Context, page string) (*TestCatalog, error) {
	keys, err := m.engine.ListMatching(ctx, RealmCatalog, map[string]schema.Value{
		"page_name": schema.Text(page),
	}, true)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no catalog with page %s", page)
	}
	return m.GetCatalog(ctx, keys[0]["id"].AsText())
}

func (m *Manager) catalogByPageTx(ctx context.Context, txn *entity.Txn, page string) (*TestCatalog, error) {
	keys, err := m.engine.ListMatchingTx(ctx, txn, RealmCatalog, map[string]schema.Value{
		"page_name": schema.Text(page),
	}, true)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no catalog with page %s", page)
	}
	e, err := m.engine.NewEntity(RealmCatalog, keys[0])
	if err != nil {
		return nil, err
	}
	if _, err := m.engine.LoadTx(ctx, txn, e); err != nil {
		return nil, err
	}
	return &TestCatalog{e}, nil
}

// SubCatalogs returns the catalogs directly under the given page, in
// id order. parentPage may be RootPage.
func (m *Manager) SubCatalogs(ctx context.Context, parentPage string) ([]*TestCatalog, error) {
	var cats []*TestCatalog
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		all, err := m.catalogsUnderTx(ctx, txn, parentPage)
		if err != nil {
			return err
		}
		for _, c := range all {
			if IsDirectSubCatalogPage(parentPage, c.PageName()) {
				cats = append(cats, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cats, nil
}

// CatalogsUnder returns every catalog below parentPage, at any depth.
func (m *Manager) CatalogsUnder(ctx context.Context, parentPage string) ([]*TestCatalog, error) {
	var cats []*TestCatalog
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		var err error
		cats, err = m.catalogsUnderTx(ctx, txn, parentPage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cats, nil
}

// CasesUnder returns every case below catalogPage, at any depth.
func (m *Manager) CasesUnder(ctx context.Context, catalogPage string) ([]*TestCase, error) {
	var cases []*TestCase
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		var err error
		cases, err = m.casesUnderTx(ctx, txn, catalogPage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cases, nil
}

// catalogsUnderTx loads every catalog whose page sits below parentPage,
// at any depth. The LIKE match treats underscores as wildcards, so the
// candidate set is re-checked against the real page prefix.
func (m *Manager) catalogsUnderTx(ctx context.Context, txn *entity.Txn, parentPage string) ([]*TestCatalog, error) {
	keys, err := m.engine.ListMatchingTx(ctx, txn, RealmCatalog, map[string]schema.Value{
		"page_name": schema.Text(parentPage + "_TT%"),
	}, false)
	if err != nil {
		return nil, err
	}
	var cats []*TestCatalog
	for _, k := range keys {
		e, err := m.engine.NewEntity(RealmCatalog, k)
		if err != nil {
			return nil, err
		}
		if _, err := m.engine.LoadTx(ctx, txn, e); err != nil {
			return nil, err
		}
		c := &TestCatalog{e}
		if strings.HasPrefix(c.PageName(), parentPage+"_") {
			cats = append(cats, c)
		}
	}
	return cats, nil
}

// casesUnderTx loads every case whose page sits below catalogPage, at
// any depth.
func (m *Manager) casesUnderTx(ctx context.Context, txn *entity.Txn, catalogPage string) ([]*TestCase, error) {
	keys, err := m.engine.ListMatchingTx(ctx, txn, RealmCase, map[string]schema.Value{
		"page_name": schema.Text(catalogPage + "_%"),
	}, false)
	if err != nil {
		return nil, err
	}
	var cases []*TestCase
	for _, k := range keys {
		e, err := m.engine.NewEntity(RealmCase, k)
		if err != nil {
			return nil, err
		}
		if _, err := m.engine.LoadTx(ctx, txn, e); err != nil {
			return nil, err
		}
		c := &TestCase{e}
		if strings.HasPrefix(c.PageName(), catalogPage+"_") {
			cases = append(cases, c)
		}
	}
	return cases, nil
}

// DeleteCatalog removes a catalog and everything below it: nested
// catalogs, their cases and pages, and every plan rooted at any of the
// removed catalogs. The whole cascade commits atomically.
func (m *Manager) DeleteCatalog(ctx context.Context, cat *TestCatalog) error {
	if err := m.allow(ctx, "delete catalog", RealmCatalog); err != nil {
		return err
	}
	page := cat.PageName()
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		cases, err := m.casesUnderTx(ctx, txn, page)
		if err != nil {
			return err
		}
		for _, c := range cases {
			if err := m.engine.DeleteTx(ctx, txn, c.Entity); err != nil {
				return err
			}
			if err := m.docs.DeleteTx(ctx, txn.Tx, c.PageName()); err != nil {
				return err
			}
		}

		subs, err := m.catalogsUnderTx(ctx, txn, page)
		if err != nil {
			return err
		}
		doomed := append(subs, cat)
		for _, c := range doomed {
			if err := m.deletePlansForTx(ctx, txn, c.ID()); err != nil {
				return err
			}
		}
		for _, c := range doomed {
			if err := m.engine.DeleteTx(ctx, txn, c.Entity); err != nil {
				return err
			}
			if err := m.docs.DeleteTx(ctx, txn.Tx, c.PageName()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info(log.CatModel, "deleted catalog", "page", page)
	return nil
}

func (m *Manager) deletePlansForTx(ctx context.Context, txn *entity.Txn, catalogID string) error {
	keys, err := m.engine.ListMatchingTx(ctx, txn, RealmPlan, map[string]schema.Value{
		"catid": schema.Text(catalogID),
	}, true)
	if err != nil {
		return err
	}
	for _, k := range keys {
		e, err := m.engine.NewEntity(RealmPlan, k)
		if err != nil {
			return err
		}
		if _, err := m.engine.LoadTx(ctx, txn, e); err != nil {
			return err
		}
		if err := m.engine.DeleteTx(ctx, txn, e); err != nil {
			return err
		}
	}
	return nil
}
