package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"testledger/internal/entity"
	"testledger/internal/log"
	"testledger/internal/schema"
)

func caseInPlanKeys(caseID, planID string) map[string]schema.Value {
	return map[string]schema.Value{
		"id":     schema.Text(caseID),
		"planid": schema.Text(planID),
	}
}

// GetCaseInPlan loads the record of a case inside a plan. The second
// return is false when no verdict has been recorded yet.
func (m *Manager) GetCaseInPlan(ctx context.Context, caseID, planID string) (*TestCaseInPlan, bool, error) {
	e, err := m.engine.NewEntity(RealmCaseInPlan, caseInPlanKeys(caseID, planID))
	if err != nil {
		return nil, false, err
	}
	ok, err := m.engine.Load(ctx, e)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &TestCaseInPlan{e}, true, nil
}

func (m *Manager) caseInPlanTx(ctx context.Context, txn *entity.Txn, caseID, planID string) (*TestCaseInPlan, bool, error) {
	e, err := m.engine.NewEntity(RealmCaseInPlan, caseInPlanKeys(caseID, planID))
	if err != nil {
		return nil, false, err
	}
	ok, err := m.engine.LoadTx(ctx, txn, e)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &TestCaseInPlan{e}, true, nil
}

// createCaseInPlanTx inserts the per-plan record for a case with the
// default outcome. Plans that freeze versions pin the page version
// current at creation time.
func (m *Manager) createCaseInPlanTx(ctx context.Context, txn *entity.Txn, tc *TestCase, p *TestPlan) (*TestCaseInPlan, error) {
	e, err := m.engine.NewEntity(RealmCaseInPlan, caseInPlanKeys(tc.ID(), p.ID()))
	if err != nil {
		return nil, err
	}
	if err := e.SetLifecycle("page_name", schema.Text(tc.PageName())); err != nil {
		return nil, err
	}
	if err := e.SetLifecycle("status", schema.Text(m.outcomes.Default().Name)); err != nil {
		return nil, err
	}
	if p.FreezesVersions() {
		v, err := m.docs.LatestVersionTx(ctx, txn.Tx, tc.PageName())
		if err != nil {
			return nil, err
		}
		if err := e.SetLifecycle("page_version", schema.Int(int64(v))); err != nil {
			return nil, err
		}
	}
	if err := m.engine.InsertTx(ctx, txn, e); err != nil {
		return nil, err
	}
	return &TestCaseInPlan{e}, nil
}

// EnsureCaseInPlan returns the per-plan record for a case, creating it
// with the default outcome when the plan has been tracking the case
// lazily.
func (m *Manager) EnsureCaseInPlan(ctx context.Context, tc *TestCase, p *TestPlan) (*TestCaseInPlan, error) {
	var cip *TestCaseInPlan
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		existing, ok, err := m.caseInPlanTx(ctx, txn, tc.ID(), p.ID())
		if err != nil {
			return err
		}
		if ok {
			cip = existing
			return nil
		}
		cip, err = m.createCaseInPlanTx(ctx, txn, tc, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cip, nil
}

// SetStatus records a verdict for a case inside a plan: the per-plan
// record is updated, or created if the plan tracked the case lazily, and
// a history row is appended. Both writes commit together.
func (m *Manager) SetStatus(ctx context.Context, tc *TestCase, p *TestPlan, status, author string) error {
	if err := m.allow(ctx, "set status", RealmCaseInPlan); err != nil {
		return err
	}
	status = strings.ToLower(status)
	if _, ok := m.outcomes.Lookup(status); !ok {
		return fmt.Errorf("unknown outcome %q", status)
	}
	err := m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		cip, ok, err := m.caseInPlanTx(ctx, txn, tc.ID(), p.ID())
		if err != nil {
			return err
		}
		if !ok {
			cip, err = m.createCaseInPlanTx(ctx, txn, tc, p)
			if err != nil {
				return err
			}
		}
		if err := cip.SetLifecycle("status", schema.Text(status)); err != nil {
			return err
		}
		if _, err := m.engine.SaveChangesTx(ctx, txn, cip.Entity, author, ""); err != nil {
			return err
		}
		// Microsecond timestamps keep the (id, planid, time) key unique
		// for verdicts recorded within the same second.
		_, err = txn.Tx.ExecContext(ctx,
			"INSERT INTO testcasehistory (id, planid, time, author, status) VALUES (?, ?, ?, ?, ?)",
			tc.ID(), p.ID(), txn.Now.UnixMicro(), author, status,
		)
		if err != nil {
			return fmt.Errorf("recording verdict for case %s in plan %s: %w", tc.ID(), p.ID(), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info(log.CatModel, "recorded verdict", "case", tc.ID(), "plan", p.ID(),
		"status", status, "author", author)
	return nil
}

// UpdateVersion re-pins a frozen per-plan record to the latest version of
// the case's page.
func (m *Manager) UpdateVersion(ctx context.Context, cip *TestCaseInPlan, author string) error {
	if err := m.allow(ctx, "update version", RealmCaseInPlan); err != nil {
		return err
	}
	return m.engine.RunInTx(ctx, func(txn *entity.Txn) error {
		v, err := m.docs.LatestVersionTx(ctx, txn.Tx, cip.PageName())
		if err != nil {
			return err
		}
		if err := cip.SetLifecycle("page_version", schema.Int(int64(v))); err != nil {
			return err
		}
		_, err = m.engine.SaveChangesTx(ctx, txn, cip.Entity, author, "")
		return err
	})
}

// StatusChange is one entry in a case's verdict history inside a plan.
type StatusChange struct {
	Time   time.Time
	Author string
	Status string
}

// StatusHistory returns every verdict ever recorded for a case inside a
// plan, newest first.
func (m *Manager) StatusHistory(ctx context.Context, caseID, planID string) ([]StatusChange, error) {
	rows, err := m.db.Conn().QueryContext(ctx,
		"SELECT time, author, status FROM testcasehistory WHERE id = ? AND planid = ? ORDER BY time DESC",
		caseID, planID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading verdict history: %w", err)
	}
	defer rows.Close()

	var history []StatusChange
	for rows.Next() {
		var ts int64
		var c StatusChange
		if err := rows.Scan(&ts, &c.Author, &c.Status); err != nil {
			return nil, fmt.Errorf("reading verdict history: %w", err)
		}
		c.Time = time.UnixMicro(ts).UTC()
		history = append(history, c)
	}
	return history, rows.Err()
}

// DeleteHistory drops every verdict recorded for a case inside a plan.
// The per-plan record and its current status stay in place.
func (m *Manager) DeleteHistory(ctx context.Context, caseID, planID string) error {
	if err := m.allow(ctx, "delete history", RealmCaseInPlan); err != nil {
		return err
	}
	_, err := m.db.Conn().ExecContext(ctx,
		"DELETE FROM testcasehistory WHERE id = ? AND planid = ?", caseID, planID,
	)
	if err != nil {
		return fmt.Errorf("deleting verdict history for case %s in plan %s: %w", caseID, planID, err)
	}
	return nil
}

// Verdict is a recorded outcome together with the case and plan it was
// recorded against.
type Verdict struct {
	CaseID string
	PlanID string
	Time   time.Time
	Author string
	Status string
}

// RecentVerdicts returns every verdict recorded across all plans during
// the last given number of days, newest first.
func (m *Manager) RecentVerdicts(ctx context.Context, days int) ([]Verdict, error) {
	cutoff := time.Now().AddDate(0, 0, -days).UnixMicro()
	rows, err := m.db.Conn().QueryContext(ctx,
		"SELECT id, planid, time, author, status FROM testcasehistory WHERE time >= ? ORDER BY time DESC",
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("reading recent verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []Verdict
	for rows.Next() {
		var ts int64
		var v Verdict
		if err := rows.Scan(&v.CaseID, &v.PlanID, &ts, &v.Author, &v.Status); err != nil {
			return nil, fmt.Errorf("reading recent verdicts: %w", err)
		}
		v.Time = time.UnixMicro(ts).UTC()
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}
