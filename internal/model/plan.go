package model

import (
	"context"
	"sort"
	"strconv"

	"testledger/internal/entity"
	"testledger/internal/log"
	"testledger/internal/schema"
	"testledger/internal/storage"
)

// PlanSpec describes a plan to create. An empty CaseIDs with ContainsAll
// set covers every case below the catalog; otherwise CaseIDs picks the
// cases explicitly.
type PlanSpec struct {
	Name           string
	Author         string
	ContainsAll    bool
	FreezeVersions bool
	CaseIDs        []string
}

// CreatePlan snapshots a catalog into a new test plan. Plans that
// contain everything without freezing page versions stay lazy: per-case
// records appear only once a verdict is recorded.
func (m *Manager) CreatePlan(ctx context.Context, cat *TestCatalog, spec PlanSpec) (*TestPlan, error) {
	if err := m.allow(ctx, "create plan", RealmPlan); err != nil {
		return nil, err
	}
	var plan *TestPlan
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		id, err := storage.NextID(txn.Tx, storage.PropNextPlanID)
		if err != nil {
			return err
		}

		e, err := m.engine.NewEntity(RealmPlan, map[string]schema.Value{
			"id": schema.Text(strconv.Itoa(id)),
		})
		if err != nil {
			return err
		}
		fields := map[string]schema.Value{
			"catid":              schema.Text(cat.ID()),
			"page_name":          schema.Text(cat.PageName()),
			"name":               schema.Text(spec.Name),
			"author":             schema.Text(spec.Author),
			"time":               schema.Time(txn.Now),
			"contains_all":       schema.Int(boolInt(spec.ContainsAll)),
			"freeze_tc_versions": schema.Int(boolInt(spec.FreezeVersions)),
		}
		for name, v := range fields {
			if err := e.SetLifecycle(name, v); err != nil {
				return err
			}
		}
		if err := m.engine.InsertTx(ctx, txn, e); err != nil {
			return err
		}
		plan = &TestPlan{e}

		var selected []*TestCase
		switch {
		case !spec.ContainsAll:
			for _, caseID := range spec.CaseIDs {
				tc, err := m.caseByIDTx(ctx, txn, caseID)
				if err != nil {
					return err
				}
				selected = append(selected, tc)
			}
		case spec.FreezeVersions:
			selected, err = m.casesUnderTx(ctx, txn, cat.PageName())
			if err != nil {
				return err
			}
		}
		for _, tc := range selected {
			if _, err := m.createCaseInPlanTx(ctx, txn, tc, plan); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info(log.CatModel, "created plan", "id", plan.ID(), "catalog", cat.PageName(),
		"name", spec.Name, "author", spec.Author)
	return plan, nil
}

func (m *Manager) caseByIDTx(ctx context.Context, txn *entity.Txn, id string) (*TestCase, error) {
	e, err := m.engine.NewEntity(RealmCase, map[string]schema.Value{
		"id": schema.Text(id),
	})
	if err != nil {
		return nil, err
	}
	ok, err := m.engine.LoadTx(ctx, txn, e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &entity.NotFoundError{Realm: RealmCase, Keys: e.Keys()}
	}
	return &TestCase{e}, nil
}

// GetPlan loads a plan by id.
func (m *Manager) GetPlan(ctx context.Context, id string) (*TestPlan, error) {
	e, err := m.engine.NewEntity(RealmPlan, map[string]schema.Value{
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
		return nil, &entity.NotFoundError{Realm: RealmPlan, Keys: e.Keys()}
	}
	return &TestPlan{e}, nil
}

// PlansForCatalog returns the plans rooted at the given catalog, newest
// first.
func (m *Manager) PlansForCatalog(ctx context.Context, catalogID string) ([]*TestPlan, error) {
	keys, err := m.engine.ListMatching(ctx, RealmPlan, map[string]schema.Value{
		"catid": schema.Text(catalogID),
	}, true)
	if err != nil {
		return nil, err
	}
	plans := make([]*TestPlan, 0, len(keys))
	for _, k := range keys {
		p, err := m.GetPlan(ctx, k["id"].AsText())
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Created().After(plans[j].Created())
	})
	return plans, nil
}

// DeletePlan removes a plan together with its per-case records and
// verdict history.
func (m *Manager) DeletePlan(ctx context.Context, p *TestPlan) error {
	if err := m.allow(ctx, "delete plan", RealmPlan); err != nil {
		return err
	}
	if err := m.engine.Delete(ctx, p.Entity); err != nil {
		return err
	}
	log.Info(log.CatModel, "deleted plan", "id", p.ID())
	return nil
}

// PlanCase pairs a case with its standing inside one plan.
type PlanCase struct {
	Case        *TestCase
	Status      Outcome
	PageVersion int64 // 0 means the live page
}

// PlanCases returns the cases a plan covers, in execution order, each
// with its current verdict. Cases without a recorded verdict report the
// default outcome.
func (m *Manager) PlanCases(ctx context.Context, p *TestPlan) ([]PlanCase, error) {
	var result []PlanCase
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		var cases []*TestCase
		var err error
		if p.ContainsAll() {
			cases, err = m.casesUnderTx(ctx, txn, p.PageName())
		} else {
			cases, err = m.selectedCasesTx(ctx, txn, p)
		}
		if err != nil {
			return err
		}
		sortCasesByOrder(cases)

		for _, tc := range cases {
			pc := PlanCase{Case: tc, Status: m.outcomes.Default()}
			cip, ok, err := m.caseInPlanTx(ctx, txn, tc.ID(), p.ID())
			if err != nil {
				return err
			}
			if ok {
				st, known := m.outcomes.Lookup(cip.Status())
				if known {
					pc.Status = st
				}
				pc.PageVersion = cip.PageVersion()
			}
			result = append(result, pc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Manager) selectedCasesTx(ctx context.Context, txn *entity.Txn, p *TestPlan) ([]*TestCase, error) {
	keys, err := m.engine.ListMatchingTx(ctx, txn, RealmCaseInPlan, map[string]schema.Value{
		"planid": schema.Text(p.ID()),
	}, true)
	if err != nil {
		return nil, err
	}
	cases := make([]*TestCase, 0, len(keys))
	for _, k := range keys {
		tc, err := m.caseByIDTx(ctx, txn, k["id"].AsText())
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
