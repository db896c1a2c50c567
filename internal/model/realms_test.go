package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageNaming(t *testing.T) {
	require.Equal(t, "TC_TT3", CatalogPage(RootPage, "3"))
	require.Equal(t, "TC_TT3_TC7", CasePage("TC_TT3", "7"))

	cat, ok := EnclosingCatalogPage("TC_TT3_TT5_TC7")
	require.True(t, ok)
	require.Equal(t, "TC_TT3_TT5", cat)

	_, ok = EnclosingCatalogPage("TC_TT3")
	require.False(t, ok)

	id, ok := CatalogIDFromPage("TC_TT3_TT5")
	require.True(t, ok)
	require.Equal(t, "5", id)

	_, ok = CatalogIDFromPage("TC")
	require.False(t, ok)
}

func TestDirectChildChecks(t *testing.T) {
	require.True(t, IsDirectSubCatalogPage("TC_TT1", "TC_TT1_TT2"))
	require.False(t, IsDirectSubCatalogPage("TC_TT1", "TC_TT1_TT2_TT3"), "nested, not direct")
	require.False(t, IsDirectSubCatalogPage("TC_TT1", "TC_TT10_TT2"), "sibling with a longer id")

	require.True(t, IsDirectCasePage("TC_TT1", "TC_TT1_TC4"))
	require.False(t, IsDirectCasePage("TC_TT1", "TC_TT1_TT2_TC4"))
	require.False(t, IsDirectCasePage("TC_TT1", "TC_TT1_TT2"))
}
