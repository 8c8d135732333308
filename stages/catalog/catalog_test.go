package catalog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/cschleiden/go-mediaflow/stages"
)

func newSQLiteCatalog(t *testing.T) stages.Catalog {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	c, err := NewSQLiteCatalog(db, nil)
	require.NoError(t, err)

	return c
}

func catalogs() map[string]func(t *testing.T) stages.Catalog {
	return map[string]func(t *testing.T) stages.Catalog{
		"Memory": func(t *testing.T) stages.Catalog { return NewMemoryCatalog() },
		"SQLite": newSQLiteCatalog,
	}
}

func doc(checksum, filename string) stages.Document {
	return stages.Document{
		stages.DocChecksum:     checksum,
		stages.DocFilename:     filename,
		stages.DocFileLocation: stages.LocationWorking,
		stages.DocAssetClass:   "Image",
		"General":              map[string]any{"make": "Canon"},
	}
}

var entry = stages.AuditEntry{User: "System", Timestamp: "2024-03-01T12:00:00+0000", Action: "Asset removed from CDN", Notes: "exec-1"}

func Test_Catalog(t *testing.T) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, c stages.Catalog)
	}{
		{
			name: "InsertAndGet",
			f: func(t *testing.T, ctx context.Context, c stages.Catalog) {
				require.NoError(t, c.Insert(ctx, "abc", doc("abc", "photo")))

				d, err := c.Get(ctx, "abc")
				require.NoError(t, err)
				require.Equal(t, "photo", d.String(stages.DocFilename))
				require.Equal(t, stages.LocationWorking, d.Location())
				require.Equal(t, map[string]any{"make": "Canon"}, d["General"])
			},
		},
		{
			name: "Insert_Duplicate",
			f: func(t *testing.T, ctx context.Context, c stages.Catalog) {
				require.NoError(t, c.Insert(ctx, "abc", doc("abc", "photo")))

				err := c.Insert(ctx, "abc", doc("abc", "copy"))
				require.ErrorIs(t, err, stages.ErrAssetExists)
			},
		},
		{
			name: "Get_Missing",
			f: func(t *testing.T, ctx context.Context, c stages.Catalog) {
				_, err := c.Get(ctx, "nope")
				require.ErrorIs(t, err, stages.ErrAssetNotFound)

				require.ErrorIs(t, c.Update(ctx, "nope", map[string]any{"PDL": "x"}), stages.ErrAssetNotFound)
				require.ErrorIs(t, c.Relocate(ctx, "nope", "CDN", entry), stages.ErrAssetNotFound)
			},
		},
		{
			name: "Update",
			f: func(t *testing.T, ctx context.Context, c stages.Catalog) {
				require.NoError(t, c.Insert(ctx, "abc", doc("abc", "clip")))
				require.NoError(t, c.Update(ctx, "abc", map[string]any{
					stages.DocThumbnail:  "/thumbnails/clip_thumbnail_3.jpg",
					stages.DocStoryboard: "/thumbnails/clip.vtt",
				}))

				d, err := c.Get(ctx, "abc")
				require.NoError(t, err)
				require.Equal(t, "/thumbnails/clip_thumbnail_3.jpg", d.String(stages.DocThumbnail))
				require.Equal(t, "/thumbnails/clip.vtt", d.String(stages.DocStoryboard))
				require.Equal(t, "clip", d.String(stages.DocFilename))
			},
		},
		{
			name: "Relocate_AppendsAudit",
			f: func(t *testing.T, ctx context.Context, c stages.Catalog) {
				require.NoError(t, c.Insert(ctx, "abc", doc("abc", "clip")))
				require.NoError(t, c.Relocate(ctx, "abc", "near_line", entry))
				require.NoError(t, c.Relocate(ctx, "abc", stages.LocationDelete, entry))

				d, err := c.Get(ctx, "abc")
				require.NoError(t, err)
				require.Equal(t, stages.LocationDelete, d.Location())
				require.Equal(t, []stages.AuditEntry{entry, entry}, d.Audit())
			},
		},
		{
			name: "Revive_Deleted",
			f: func(t *testing.T, ctx context.Context, c stages.Catalog) {
				old := doc("abc", "old")
				old[stages.DocRendition] = "/converted/old_PDL.mp4"
				old[stages.DocThumbnail] = "/thumbnails/old_thumbnail.jpg"
				require.NoError(t, c.Insert(ctx, "abc", old))
				require.NoError(t, c.Relocate(ctx, "abc", stages.LocationDelete, entry))

				fresh := doc("abc", "new")
				fresh[stages.DocUserFields] = map[string]any{"project": "x"}
				revived := stages.AuditEntry{User: "System", Action: "Asset registered again", Notes: "exec-2"}
				require.NoError(t, c.Revive(ctx, "abc", fresh, revived))

				d, err := c.Get(ctx, "abc")
				require.NoError(t, err)
				require.Equal(t, stages.LocationWorking, d.Location())
				require.Equal(t, "new", d.String(stages.DocFilename))
				require.Equal(t, map[string]any{"project": "x"}, d[stages.DocUserFields])
				require.NotContains(t, d, stages.DocRendition)
				require.NotContains(t, d, stages.DocThumbnail)
				require.Equal(t, []stages.AuditEntry{entry, revived}, d.Audit())
			},
		},
		{
			name: "Revive_NotDeleted",
			f: func(t *testing.T, ctx context.Context, c stages.Catalog) {
				require.NoError(t, c.Insert(ctx, "abc", doc("abc", "old")))

				err := c.Revive(ctx, "abc", doc("abc", "new"), entry)
				require.ErrorIs(t, err, stages.ErrAssetExists)

				d, err := c.Get(ctx, "abc")
				require.NoError(t, err)
				require.Equal(t, "old", d.String(stages.DocFilename))
			},
		},
	}

	for name, newCatalog := range catalogs() {
		for _, tt := range tests {
			t.Run(name+"_"+tt.name, func(t *testing.T) {
				tt.f(t, context.Background(), newCatalog(t))
			})
		}
	}
}

func Test_SQLiteCatalog_Locations(t *testing.T) {
	ctx := context.Background()
	c := newSQLiteCatalog(t).(*SQLiteCatalog)

	require.NoError(t, c.Insert(ctx, "a", doc("a", "a")))
	require.NoError(t, c.Insert(ctx, "b", doc("b", "b")))
	require.NoError(t, c.Relocate(ctx, "b", "CDN", entry))

	counts, err := c.Locations(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"working": 1, "CDN": 1}, counts)
}

func Test_SQLiteCatalog_MigrateIsIdempotent(t *testing.T) {
	c := newSQLiteCatalog(t).(*SQLiteCatalog)

	require.NoError(t, c.Migrate())
}
