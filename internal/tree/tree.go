// Package tree assembles catalogs, cases and plan verdicts into the
// hierarchical view the CLI renders: titles from the latest page
// versions, case counts per subtree and worst-of rollup of verdict
// colors.
package tree

import (
	"context"
	"sort"
	"strings"
	"time"

	"testledger/internal/cachemanager"
	"testledger/internal/log"
	"testledger/internal/model"
)

// NodeKind tells catalogs from cases.
type NodeKind int

const (
	KindCatalog NodeKind = iota
	KindCase
)

// Node is one row of the rendered tree.
type Node struct {
	Kind     NodeKind
	Page     string
	ID       string
	Title    string
	Modified time.Time
	Order    int64
	Children []*Node

	// Plan views only. Version is the pinned page version, 0 when the
	// plan follows the latest.
	Status  string
	Color   model.Color
	Version int64

	// Subtree totals. ByColor is filled for plan views.
	Cases   int
	ByColor map[model.Color]int
}

type pageInfo struct {
	title    string
	modified time.Time
}

// Builder turns the stored objects into display trees. Page titles and
// modification times come from one prefix query per build, cached for a
// short while so repeated renders do not hit the database.
type Builder struct {
	m      *model.Manager
	sortBy string
	pages  *cachemanager.ReadThroughCache[string, map[string]pageInfo, string]
}

const pageIndexTTL = 30 * time.Second

// NewBuilder returns a Builder sorting cases by sortBy: "title",
// "custom" (execution order) or "modified". skipCache bypasses the page
// index cache, for callers that need fresh titles after an edit.
func NewBuilder(m *model.Manager, sortBy string, skipCache bool) *Builder {
	b := &Builder{m: m, sortBy: sortBy}
	cache := cachemanager.NewInMemoryCacheManager[string, map[string]pageInfo](
		"tree-pages", time.Minute, 5*time.Minute,
	)
	b.pages = cachemanager.NewReadThroughCache[string, map[string]pageInfo, string](
		cache, b.loadPages, skipCache,
	)
	return b
}

func (b *Builder) loadPages(ctx context.Context, prefix string) (map[string]pageInfo, error) {
	docs, err := b.m.Docs().ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	index := make(map[string]pageInfo, len(docs))
	for _, d := range docs {
		index[d.Name] = pageInfo{title: d.Title, modified: d.Time}
	}
	log.Debug(log.CatTree, "loaded page index", "prefix", prefix, "pages", len(index))
	return index, nil
}

// BuildCatalog returns the subtree rooted at rootPage with every catalog
// and case below it. rootPage may be model.RootPage for the full tree.
func (b *Builder) BuildCatalog(ctx context.Context, rootPage string) (*Node, error) {
	cats, err := b.m.CatalogsUnder(ctx, rootPage)
	if err != nil {
		return nil, err
	}
	cases, err := b.m.CasesUnder(ctx, rootPage)
	if err != nil {
		return nil, err
	}
	pages, err := b.pages.Get(ctx, rootPage, rootPage, pageIndexTTL)
	if err != nil {
		return nil, err
	}

	root := &Node{Kind: KindCatalog, Page: rootPage, Title: pages[rootPage].title}
	if root.Title == "" {
		root.Title = "Test Catalogs"
	}
	nodes := map[string]*Node{rootPage: root}

	// Parents sort before children, so one pass links every catalog.
	sort.Slice(cats, func(i, j int) bool {
		return len(cats[i].PageName()) < len(cats[j].PageName())
	})
	for _, c := range cats {
		page := c.PageName()
		n := &Node{
			Kind:     KindCatalog,
			Page:     page,
			ID:       c.ID(),
			Title:    pages[page].title,
			Modified: pages[page].modified,
		}
		parent := nodes[parentCatalogPage(page)]
		if parent == nil {
			log.Warn(log.CatTree, "catalog outside subtree", "page", page, "root", rootPage)
			continue
		}
		parent.Children = append(parent.Children, n)
		nodes[page] = n
	}

	for _, c := range cases {
		page := c.PageName()
		catPage, ok := model.EnclosingCatalogPage(page)
		if !ok {
			continue
		}
		parent := nodes[catPage]
		if parent == nil {
			log.Warn(log.CatTree, "case outside subtree", "page", page, "root", rootPage)
			continue
		}
		parent.Children = append(parent.Children, caseNode(c, pages))
	}

	b.finish(root)
	return root, nil
}

// BuildPlan returns the tree of one plan: the cases it covers under
// their catalogs, each with its verdict, and worst-of color rollup on
// every catalog. Catalogs with no covered cases are dropped.
func (b *Builder) BuildPlan(ctx context.Context, p *model.TestPlan) (*Node, error) {
	rootPage := p.PageName()
	cats, err := b.m.CatalogsUnder(ctx, rootPage)
	if err != nil {
		return nil, err
	}
	covered, err := b.m.PlanCases(ctx, p)
	if err != nil {
		return nil, err
	}
	pages, err := b.pages.Get(ctx, rootPage, rootPage, pageIndexTTL)
	if err != nil {
		return nil, err
	}

	root := &Node{Kind: KindCatalog, Page: rootPage, Title: p.Name()}
	nodes := map[string]*Node{rootPage: root}

	sort.Slice(cats, func(i, j int) bool {
		return len(cats[i].PageName()) < len(cats[j].PageName())
	})
	for _, c := range cats {
		page := c.PageName()
		parent := nodes[parentCatalogPage(page)]
		if parent == nil {
			continue
		}
		n := &Node{
			Kind:     KindCatalog,
			Page:     page,
			ID:       c.ID(),
			Title:    pages[page].title,
			Modified: pages[page].modified,
		}
		parent.Children = append(parent.Children, n)
		nodes[page] = n
	}

	for _, pc := range covered {
		page := pc.Case.PageName()
		catPage, ok := model.EnclosingCatalogPage(page)
		if !ok {
			continue
		}
		parent := nodes[catPage]
		if parent == nil {
			continue
		}
		n := caseNode(pc.Case, pages)
		n.Status = pc.Status.Name
		n.Color = pc.Status.Color
		n.Version = pc.PageVersion
		parent.Children = append(parent.Children, n)
	}

	prune(root)
	b.finish(root)
	return root, nil
}

func caseNode(c *model.TestCase, pages map[string]pageInfo) *Node {
	page := c.PageName()
	return &Node{
		Kind:     KindCase,
		Page:     page,
		ID:       c.ID(),
		Title:    pages[page].title,
		Modified: pages[page].modified,
		Order:    c.ExecOrder(),
	}
}

func parentCatalogPage(page string) string {
	i := strings.LastIndex(page, "_TT")
	if i < 0 {
		return ""
	}
	return page[:i]
}

// prune drops catalog nodes with no cases anywhere below them.
func prune(n *Node) {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.Kind == KindCase {
			kept = append(kept, c)
			continue
		}
		prune(c)
		if len(c.Children) > 0 {
			kept = append(kept, c)
		}
	}
	n.Children = kept
}

// finish sorts children and rolls counts and colors up into n.
func (b *Builder) finish(n *Node) {
	n.ByColor = make(map[model.Color]int)
	for _, c := range n.Children {
		if c.Kind == KindCase {
			n.Cases++
			if c.Status != "" {
				n.ByColor[c.Color]++
				n.Color = model.Worst(n.Color, c.Color)
			}
			continue
		}
		b.finish(c)
		n.Cases += c.Cases
		for color, count := range c.ByColor {
			n.ByColor[color] += count
		}
		if len(c.ByColor) > 0 {
			n.Color = model.Worst(n.Color, c.Color)
		}
	}
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, z := n.Children[i], n.Children[j]
		if a.Kind != z.Kind {
			return a.Kind == KindCatalog
		}
		if a.Kind == KindCatalog {
			return a.Title < z.Title
		}
		switch b.sortBy {
		case "modified":
			return a.Modified.After(z.Modified)
		case "custom":
			return a.Order < z.Order
		default:
			return a.Title < z.Title
		}
	})
}
