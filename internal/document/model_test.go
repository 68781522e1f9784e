package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordSplitAndReconstitute(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := FromItems(map[string][]any{
		ItemUniqueID: {"abc"},
		ItemType:     {"invoice"},
		ItemVersion:  {3},
		ItemCreated:  {created},
		ItemModified: {created.Add(time.Hour)},
		"title":      {"hello"},
	})

	rec := ToRecord(d)
	require.Equal(t, "abc", rec.ID)
	require.Equal(t, "invoice", rec.Type)
	require.Equal(t, 3, rec.Version)
	require.Equal(t, created, rec.Created)
	// store-owned items do not leak into the data map
	for _, name := range []string{ItemUniqueID, ItemType, ItemVersion, ItemCreated, ItemModified} {
		require.NotContains(t, rec.Data, name)
	}
	require.Contains(t, rec.Data, "title")

	back := FromRecord(rec)
	require.Equal(t, "abc", back.ID())
	require.Equal(t, 3, back.Version())
	require.Equal(t, created, back.GetTime(ItemCreated))
	require.Equal(t, "hello", back.GetString("title"))
}

func TestFromRecordDetachesData(t *testing.T) {
	rec := ToRecord(FromItems(map[string][]any{
		ItemUniqueID: {"abc"},
		"title":      {"hello"},
	}))
	d := FromRecord(rec)
	d.SetItem("title", "mutated")
	require.Equal(t, "hello", rec.Data["title"][0])
}

func TestCloneIsIndependent(t *testing.T) {
	d := FromItems(map[string][]any{"title": {"a"}})
	c := d.Clone()
	c.SetItem("title", "b")
	require.Equal(t, "a", d.GetString("title"))
}

func TestStringifyTimestampsSortLexicographically(t *testing.T) {
	early := time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)
	late := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Less(t, Stringify(early), Stringify(late))
	require.Equal(t, "20240101000000", Stringify(late))
}

func TestGetIntHandlesJSONNumbers(t *testing.T) {
	d := FromItems(map[string][]any{
		"a": {float64(7)},
		"b": {"12"},
		"c": {int64(4)},
	})
	require.Equal(t, 7, d.GetInt("a"))
	require.Equal(t, 12, d.GetInt("b"))
	require.Equal(t, 4, d.GetInt("c"))
}
