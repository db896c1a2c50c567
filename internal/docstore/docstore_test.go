package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"testledger/internal/testutil"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testutil.NewTestDB(t))
}

func TestStore_SaveAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := &Document{
		Name:    "TC_TT0_TC1",
		Author:  "alice",
		Content: "== Login works ==\nSteps here",
	}
	version, err := s.Save(ctx, doc)
	require.NoError(t, err)
	require.Equal(t, 1, version)
	require.Equal(t, "Login works", doc.Title, "title derived from content")

	got, err := s.Get(ctx, "TC_TT0_TC1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
	require.Equal(t, "alice", got.Author)
	require.Equal(t, "Login works", got.Title)
	require.Equal(t, "== Login works ==\nSteps here", got.Content)
}

func TestStore_GetMissing(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(context.Background(), "TC_TT9_TC9")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestStore_VersionsAccumulate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i, content := range []string{"== v1 ==\n", "== v2 ==\n", "== v3 ==\n"} {
		doc := &Document{Name: "TC_TT0_TC1", Content: content}
		version, err := s.Save(ctx, doc)
		require.NoError(t, err)
		require.Equal(t, i+1, version)
	}

	latest, err := s.Get(ctx, "TC_TT0_TC1")
	require.NoError(t, err)
	require.Equal(t, 3, latest.Version)
	require.Equal(t, "v3", latest.Title)

	old, err := s.GetVersion(ctx, "TC_TT0_TC1", 2)
	require.NoError(t, err)
	require.Equal(t, "v2", old.Title)

	_, err = s.GetVersion(ctx, "TC_TT0_TC1", 9)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	n, err := s.LatestVersion(ctx, "TC_TT0_TC1")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = s.LatestVersion(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestStore_SaveNormalizesLineEndings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := &Document{Name: "TC_TT0_TC1", Content: "== T ==\r\nline one\rline two"}
	_, err := s.Save(ctx, doc)
	require.NoError(t, err)

	got, err := s.Get(ctx, "TC_TT0_TC1")
	require.NoError(t, err)
	require.Equal(t, "== T ==\nline one\nline two", got.Content)
}

func TestStore_Delete_RemovesAllVersions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for range [3]struct{}{} {
		_, err := s.Save(ctx, &Document{Name: "TC_TT0_TC1", Content: "== x ==\n"})
		require.NoError(t, err)
	}

	require.NoError(t, s.Delete(ctx, "TC_TT0_TC1"))

	_, err := s.Get(ctx, "TC_TT0_TC1")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	err = s.Delete(ctx, "TC_TT0_TC1")
	require.ErrorAs(t, err, &notFound)
}

func TestStore_Rename(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, &Document{Name: "TC_TT0_TC1", Content: "== a ==\n"})
	require.NoError(t, err)
	_, err = s.Save(ctx, &Document{Name: "TC_TT0_TC1", Content: "== b ==\n"})
	require.NoError(t, err)

	require.NoError(t, s.Rename(ctx, "TC_TT0_TC1", "TC_TT2_TC1"))

	got, err := s.Get(ctx, "TC_TT2_TC1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Version, "all versions move with the rename")

	_, err = s.Get(ctx, "TC_TT0_TC1")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestStore_Rename_TargetExists(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, &Document{Name: "a", Content: "== a ==\n"})
	require.NoError(t, err)
	_, err = s.Save(ctx, &Document{Name: "b", Content: "== b ==\n"})
	require.NoError(t, err)

	err = s.Rename(ctx, "a", "b")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}

func TestStore_ListByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, name := range []string{"TC_TT0_TC1", "TC_TT0_TC2", "TC_TT1_TC3"} {
		_, err := s.Save(ctx, &Document{Name: name, Content: "== " + name + " ==\n"})
		require.NoError(t, err)
	}
	// Bump one so the latest version is returned
	_, err := s.Save(ctx, &Document{Name: "TC_TT0_TC1", Content: "== updated ==\n"})
	require.NoError(t, err)

	docs, err := s.ListByPrefix(ctx, "TC_TT0")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "TC_TT0_TC1", docs[0].Name)
	require.Equal(t, 2, docs[0].Version)
	require.Equal(t, "updated", docs[0].Title)
	require.Equal(t, "TC_TT0_TC2", docs[1].Name)
}

func TestTitleAndDescription(t *testing.T) {
	content := "== Login works ==\nGiven a user\nWhen they log in"
	require.Equal(t, "Login works", Title(content))
	require.Equal(t, "Given a user\nWhen they log in", Description(content))

	require.Equal(t, "Bare line", Title("Bare line"))
	require.Equal(t, "", Description("Bare line"))
	require.Equal(t, "", Title(""))
}

func TestCompose(t *testing.T) {
	content := Compose("Login works", "Steps")
	require.Equal(t, "== Login works ==\nSteps", content)
	require.Equal(t, "Login works", Title(content))
	require.Equal(t, "Steps", Description(content))
}
