// Package model implements the tracked object types: test catalogs,
// test cases, test plans and the per-plan case records. It builds on the
// generic entity engine and owns the page naming scheme, execution
// ordering, plan fan-out and verdict tracking.
package model

import (
	"regexp"
	"strings"

	"testledger/internal/schema"
)

// Realm names.
const (
	RealmCatalog    = "testcatalog"
	RealmCase       = "testcase"
	RealmPlan       = "testplan"
	RealmCaseInPlan = "testcaseinplan"
)

// RootPage is the page name all catalogs hang under.
const RootPage = "TC"

// RealmDecls returns the static field layout of the four tracked realms.
func RealmDecls() []schema.Realm {
	return []schema.Realm{
		{
			Name:       RealmCatalog,
			Table:      "testcatalog",
			HasCustom:  true,
			HasChange:  true,
			Searchable: true,
			Keys:       []string{"id"},
			Standard: []schema.Field{
				{Name: "id", Kind: schema.KindText},
				{Name: "page_name", Kind: schema.KindText, Protected: true},
			},
		},
		{
			Name:       RealmCase,
			Table:      "testcase",
			HasCustom:  true,
			HasChange:  true,
			Searchable: true,
			Keys:       []string{"id"},
			Standard: []schema.Field{
				{Name: "id", Kind: schema.KindText},
				{Name: "page_name", Kind: schema.KindText, Protected: true},
				{Name: "exec_order", Kind: schema.KindInt, Protected: true},
			},
		},
		{
			Name:       RealmPlan,
			Table:      "testplan",
			HasCustom:  true,
			HasChange:  true,
			Searchable: true,
			Keys:       []string{"id"},
			Standard: []schema.Field{
				{Name: "id", Kind: schema.KindText},
				{Name: "catid", Kind: schema.KindText, Protected: true},
				{Name: "page_name", Kind: schema.KindText, Protected: true},
				{Name: "name", Kind: schema.KindText, Protected: true},
				{Name: "author", Kind: schema.KindText, Protected: true},
				{Name: "time", Kind: schema.KindTime, Protected: true},
				{Name: "contains_all", Kind: schema.KindInt, Protected: true},
				{Name: "freeze_tc_versions", Kind: schema.KindInt, Protected: true},
			},
		},
		{
			Name:       RealmCaseInPlan,
			Table:      "testcaseinplan",
			HasCustom:  true,
			HasChange:  true,
			Searchable: true,
			Keys:       []string{"id", "planid"},
			Standard: []schema.Field{
				{Name: "id", Kind: schema.KindText},
				{Name: "planid", Kind: schema.KindText},
				{Name: "page_name", Kind: schema.KindText, Protected: true},
				{Name: "page_version", Kind: schema.KindInt, Protected: true},
				{Name: "status", Kind: schema.KindText, Protected: true},
			},
		},
	}
}

var (
	catalogTokenRe = regexp.MustCompile(`^TT[0-9]+$`)
	caseTokenRe    = regexp.MustCompile(`^TC[0-9]+$`)
	digitsRe       = regexp.MustCompile(`^[0-9]+$`)
)

// CatalogPage builds the page name of a catalog under its parent.
func CatalogPage(parentPage, id string) string {
	return parentPage + "_TT" + id
}

// CasePage builds the page name of a case inside its catalog.
func CasePage(catalogPage, id string) string {
	return catalogPage + "_TC" + id
}

// EnclosingCatalogPage returns the catalog page a case page belongs to.
func EnclosingCatalogPage(casePage string) (string, bool) {
	i := strings.LastIndex(casePage, "_TC")
	if i < 0 {
		return "", false
	}
	return casePage[:i], true
}

// CatalogIDFromPage extracts the catalog id from its page name. The root
// page has no id.
func CatalogIDFromPage(page string) (string, bool) {
	i := strings.LastIndex(page, "_TT")
	if i < 0 {
		return "", false
	}
	id := page[i+len("_TT"):]
	if !digitsRe.MatchString(id) {
		return "", false
	}
	return id, true
}

// IsDirectSubCatalogPage reports whether page names a catalog directly
// under parentPage.
func IsDirectSubCatalogPage(parentPage, page string) bool {
	rest, ok := strings.CutPrefix(page, parentPage+"_")
	if !ok {
		return false
	}
	return catalogTokenRe.MatchString(rest)
}

// IsDirectCasePage reports whether page names a case directly inside
// catalogPage, as opposed to one nested in a sub catalog.
func IsDirectCasePage(catalogPage, page string) bool {
	rest, ok := strings.CutPrefix(page, catalogPage+"_")
	if !ok {
		return false
	}
	return caseTokenRe.MatchString(rest)
}
