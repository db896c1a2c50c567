package schema

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"testledger/internal/config"
)

func testDecls() []Realm {
	return []Realm{
		{
			Name:      "testcase",
			Table:     "testcase",
			HasCustom: true,
			HasChange: true,
			Keys:      []string{"id"},
			Standard: []Field{
				{Name: "id", Kind: KindText},
				{Name: "page_name", Kind: KindText},
				{Name: "exec_order", Kind: KindInt},
			},
		},
		{
			Name:  "testcaseinplan",
			Table: "testcaseinplan",
			Keys:  []string{"id", "planid"},
			Standard: []Field{
				{Name: "id", Kind: KindText},
				{Name: "planid", Kind: KindText},
				{Name: "status", Kind: KindText},
			},
		},
	}
}

func TestValue_NullsCompareEqual(t *testing.T) {
	require.True(t, Null(KindText).Equal(Null(KindInt)))
	require.False(t, Null(KindText).Equal(Text("")))
	require.False(t, Text("").Equal(Null(KindText)))
}

func TestValue_Equal(t *testing.T) {
	require.True(t, Text("a").Equal(Text("a")))
	require.False(t, Text("a").Equal(Text("b")))
	require.True(t, Int(3).Equal(Int(3)))
	require.False(t, Int(3).Equal(Text("3")))

	now := time.Now()
	require.True(t, Time(now).Equal(Time(now)))
}

func TestValue_DBValue(t *testing.T) {
	require.Nil(t, Null(KindText).DBValue())
	require.Equal(t, "x", Text("x").DBValue())
	require.Equal(t, int64(7), Int(7).DBValue())

	ts := time.Unix(1700000000, 0)
	require.Equal(t, int64(1700000000), Time(ts).DBValue())
}

func TestValue_TimeTruncatesToSeconds(t *testing.T) {
	ts := time.Unix(1700000000, 999999999)
	v := Time(ts)
	require.Equal(t, int64(1700000000), v.AsTime().Unix())
	require.Equal(t, 0, v.AsTime().Nanosecond())
}

func TestScanValue(t *testing.T) {
	v, err := ScanValue(KindText, sql.NullString{})
	require.NoError(t, err)
	require.False(t, v.Valid())

	v, err = ScanValue(KindInt, sql.NullString{String: "12", Valid: true})
	require.NoError(t, err)
	require.Equal(t, int64(12), v.AsInt())

	v, err = ScanValue(KindTime, sql.NullString{String: "1700000000", Valid: true})
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), v.AsTime().Unix())

	_, err = ScanValue(KindInt, sql.NullString{String: "abc", Valid: true})
	require.Error(t, err)
}

func TestRegistry_Lookup(t *testing.T) {
	reg, err := NewRegistry(testDecls(), nil)
	require.NoError(t, err)

	realm, err := reg.Lookup("testcase")
	require.NoError(t, err)
	require.Equal(t, "testcase", realm.Table)
	require.Equal(t, "testcase_custom", realm.CustomTable())
	require.Equal(t, "testcase_change", realm.ChangeTable())
	require.True(t, realm.IsKey("id"))
	require.False(t, realm.IsKey("page_name"))

	_, err = reg.Lookup("tickets")
	require.Error(t, err)
	var unknownRealm *UnknownRealmError
	require.ErrorAs(t, err, &unknownRealm)
}

func TestRegistry_MergesCustomFields(t *testing.T) {
	custom := map[string][]config.CustomFieldConfig{
		"testcase": {
			{Name: "component", Type: "select", Options: []string{"core", "ui"}},
			{Name: "notes"},
		},
	}
	reg, err := NewRegistry(testDecls(), custom)
	require.NoError(t, err)

	realm, err := reg.Lookup("testcase")
	require.NoError(t, err)
	require.Len(t, realm.Custom, 2)

	f, ok := realm.Field("component")
	require.True(t, ok)
	require.True(t, f.Custom)
	require.Equal(t, KindText, f.Kind)
	require.Equal(t, "select", f.Type)
	require.Equal(t, "component", f.Label, "label defaults to the field name")

	f, ok = realm.Field("notes")
	require.True(t, ok)
	require.Equal(t, "text", f.Type, "widget defaults to text")
}

func TestRegistry_RejectsBadFieldName(t *testing.T) {
	custom := map[string][]config.CustomFieldConfig{
		"testcase": {{Name: "9lives"}},
	}
	_, err := NewRegistry(testDecls(), custom)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not valid")
}

func TestRegistry_RejectsStandardFieldCollision(t *testing.T) {
	custom := map[string][]config.CustomFieldConfig{
		"testcase": {{Name: "page_name"}},
	}
	_, err := NewRegistry(testDecls(), custom)
	require.Error(t, err)
	require.Contains(t, err.Error(), "collides")
}

func TestRegistry_RejectsUnknownRealmInConfig(t *testing.T) {
	custom := map[string][]config.CustomFieldConfig{
		"tickets": {{Name: "owner"}},
	}
	_, err := NewRegistry(testDecls(), custom)
	require.Error(t, err)
}

func TestRegistry_RejectsCustomFieldsWithoutSupport(t *testing.T) {
	custom := map[string][]config.CustomFieldConfig{
		"testcaseinplan": {{Name: "owner"}},
	}
	_, err := NewRegistry(testDecls(), custom)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not support custom fields")
}

func TestRegistry_Refresh(t *testing.T) {
	reg, err := NewRegistry(testDecls(), nil)
	require.NoError(t, err)

	realm, err := reg.Lookup("testcase")
	require.NoError(t, err)
	require.Empty(t, realm.Custom)

	err = reg.Refresh(map[string][]config.CustomFieldConfig{
		"testcase": {{Name: "component"}},
	})
	require.NoError(t, err)

	realm, err = reg.Lookup("testcase")
	require.NoError(t, err)
	require.Len(t, realm.Custom, 1)

	// A failed refresh leaves the previous schema in place
	err = reg.Refresh(map[string][]config.CustomFieldConfig{
		"testcase": {{Name: "bad name"}},
	})
	require.Error(t, err)

	realm, err = reg.Lookup("testcase")
	require.NoError(t, err)
	require.Len(t, realm.Custom, 1)
}

func TestRealm_NonKeyStandard(t *testing.T) {
	reg, err := NewRegistry(testDecls(), nil)
	require.NoError(t, err)

	realm, err := reg.Lookup("testcaseinplan")
	require.NoError(t, err)

	fields := realm.NonKeyStandard()
	require.Len(t, fields, 1)
	require.Equal(t, "status", fields[0].Name)
}
