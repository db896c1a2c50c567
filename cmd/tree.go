package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"testledger/internal/model"
	"testledger/internal/tree"
)

var treeCmd = &cobra.Command{
	Use:   "tree [catalog-page]",
	Short: "Print the catalog hierarchy, or a plan's verdicts with --plan",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTree,
}

func init() {
	treeCmd.Flags().String("plan", "", "show the tree of this plan id")
	treeCmd.Flags().String("sort", "", "sort cases by title, custom or modified")
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	m, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	sortBy := cfg.SortBy
	if s, _ := cmd.Flags().GetString("sort"); s != "" {
		sortBy = s
	}
	b := tree.NewBuilder(m, sortBy, false)

	ctx := cmd.Context()
	var root *tree.Node
	if planID, _ := cmd.Flags().GetString("plan"); planID != "" {
		p, err := m.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		root, err = b.BuildPlan(ctx, p)
		if err != nil {
			return err
		}
	} else {
		page := model.RootPage
		if len(args) == 1 {
			page = args[0]
		}
		root, err = b.BuildCatalog(ctx, page)
		if err != nil {
			return err
		}
	}

	printNode(cmd.OutOrStdout(), root, 0)
	return nil
}

func printNode(w io.Writer, n *tree.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch {
	case n.Kind == tree.KindCase && n.Status != "":
		fmt.Fprintf(w, "%s- %s [%s] (%s)\n", indent, n.Title, n.Page, n.Status)
	case n.Kind == tree.KindCase:
		fmt.Fprintf(w, "%s- %s [%s]\n", indent, n.Title, n.Page)
	case len(n.ByColor) > 0:
		fmt.Fprintf(w, "%s%s [%s] %d cases, %s\n", indent, n.Title, n.Page, n.Cases, n.Color)
	default:
		fmt.Fprintf(w, "%s%s [%s] %d cases\n", indent, n.Title, n.Page, n.Cases)
	}
	for _, c := range n.Children {
		printNode(w, c, depth+1)
	}
}
