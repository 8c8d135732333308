package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/core"
)

func record(class core.AssetClass, fields map[string]any) core.Record {
	r := core.Record{Asset: "/working/a", AssetClass: class, CatalogKey: "sha1", Fields: fields}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}

	return r
}

func TestIngest_Routes(t *testing.T) {
	d := MustBuiltin(Ingest)

	tests := []struct {
		from     string
		class    core.AssetClass
		to       string
		terminal bool
	}{
		{Start, "", "identifyAssetClass", false},
		{"identifyAssetClass", core.AssetClassImage, "extractExifMetadata", false},
		{"identifyAssetClass", core.AssetClassVideo, "extractMediainfoMetadata", false},
		{"identifyAssetClass", core.AssetClassAudio, "extractMediainfoMetadata", false},
		{"identifyAssetClass", core.AssetClassOther, "extractMediainfoMetadata", false},
		{"extractExifMetadata", core.AssetClassImage, "registerAsset", false},
		{"extractMediainfoMetadata", core.AssetClassVideo, "registerAsset", false},
		{"registerAsset", core.AssetClassImage, "createThumbnailFromImage", false},
		{"registerAsset", core.AssetClassVideo, "createThumbnailFromVideo", false},
		{"registerAsset", core.AssetClassAudio, "transcodeAudioDefault", false},
		{"registerAsset", core.AssetClassOther, "distributeToStore", false},
		{"createThumbnailFromImage", core.AssetClassImage, "distributeToStore", false},
		{"createThumbnailFromVideo", core.AssetClassVideo, "transcodeVideoDefault", false},
		{"transcodeVideoDefault", core.AssetClassVideo, "distributeToStore", false},
		{"transcodeAudioDefault", core.AssetClassAudio, "distributeToStore", false},
		{"distributeToStore", core.AssetClassOther, "cleanUpLandingPad", false},
		{"cleanUpLandingPad", core.AssetClassImage, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.from+"/"+string(tt.class), func(t *testing.T) {
			e, err := d.Lookup(tt.from, record(tt.class, nil))
			require.NoError(t, err)
			require.Equal(t, tt.to, e.To)
			require.Equal(t, tt.terminal, e.Terminal)
			if !tt.terminal {
				require.Equal(t, core.Queue(tt.to), e.NextQueue())
			}
		})
	}
}

func TestLifecycle_Routes(t *testing.T) {
	d := MustBuiltin(Lifecycle)

	tests := []struct {
		name        string
		from        string
		source      string
		destination string
		to          string
		terminal    bool
	}{
		{"delete at start", Start, "CDN", "delete", "deleteFiles", false},
		{"move at start", Start, "CDN", "near_line", "moveFiles", false},
		{"warm move completes", "moveFiles", "CDN", "near_line", "", true},
		{"to archive cleans up", "moveFiles", "CDN", "archive", "cleanUpLandingPad", false},
		{"from archive cleans up", "moveFiles", "archive", "CDN", "cleanUpLandingPad", false},
		{"clean up completes", "cleanUpLandingPad", "CDN", "archive", "", true},
		{"delete completes", "deleteFiles", "CDN", "delete", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := record("", map[string]any{"locationSource": tt.source, "locationDestination": tt.destination})

			e, err := d.Lookup(tt.from, r)
			require.NoError(t, err)
			require.Equal(t, tt.to, e.To)
			require.Equal(t, tt.terminal, e.Terminal)
		})
	}
}

func TestLookup_NoRoute(t *testing.T) {
	d := MustBuiltin(Ingest)

	_, err := d.Lookup("registerAsset", record("", nil))
	require.ErrorIs(t, err, ErrNoRoute)

	var re *RoutingError
	require.True(t, errors.As(err, &re))
	require.Equal(t, "registerAsset", re.From)
	require.Equal(t, Ingest, re.Definition)

	_, err = d.Lookup("unknownActivity", record(core.AssetClassImage, nil))
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestLookup_UnresolvedBranch(t *testing.T) {
	tests := []struct {
		name   string
		def    string
		from   string
		result core.Record
	}{
		{"missing asset class", Ingest, "identifyAssetClass", record("", nil)},
		{"unknown asset class", Ingest, "identifyAssetClass", record("Document", nil)},
		{"asset class with wrong case", Ingest, "identifyAssetClass", record("image", nil)},
		{"missing destination at start", Lifecycle, Start, record("", nil)},
		{"missing tiers after move", Lifecycle, "moveFiles", record("", map[string]any{"File_Location": "near_line"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MustBuiltin(tt.def).Lookup(tt.from, tt.result)
			require.ErrorIs(t, err, ErrNoRoute)

			var re *RoutingError
			require.True(t, errors.As(err, &re))
			require.Equal(t, tt.from, re.From)
		})
	}
}

func TestPredicate_Matches(t *testing.T) {
	p := &Predicate{Fields: []string{"locationSource", "locationDestination"}, In: []string{"archive"}}
	np := &Predicate{Fields: p.Fields, In: p.In, Negate: true}

	tests := []struct {
		name    string
		fields  map[string]any
		matches bool
		negated bool
	}{
		{"none set", nil, false, false},
		{"one set and contained", map[string]any{"locationDestination": "archive"}, true, false},
		{"one set not contained", map[string]any{"locationSource": "CDN"}, false, true},
		{"both set", map[string]any{"locationSource": "CDN", "locationDestination": "near_line"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := record("", tt.fields)

			require.Equal(t, tt.matches, p.Matches(r))
			require.Equal(t, tt.negated, np.Matches(r))
		})
	}

	var unconditional *Predicate
	require.True(t, unconditional.Matches(record("", nil)))
}

func TestLookup_Ambiguous(t *testing.T) {
	d := &Definition{
		Name: "overlap",
		Entries: []Entry{
			{From: Start, To: "first", Branch: &Predicate{Fields: []string{"a"}, In: []string{"x"}}},
			{From: Start, To: "second", Branch: &Predicate{Fields: []string{"b"}, In: []string{"y"}}},
		},
	}

	_, err := d.Lookup(Start, record("", map[string]any{"a": "x", "b": "y"}))
	require.ErrorIs(t, err, ErrAmbiguousRoute)

	var re *RoutingError
	require.True(t, errors.As(err, &re))
	require.Len(t, re.Matches, 2)
}

func TestBuildInput_CarriesForward(t *testing.T) {
	for _, name := range []string{Ingest, Lifecycle} {
		d := MustBuiltin(name)

		for i := range d.Entries {
			e := &d.Entries[i]
			t.Run(name+"/"+e.String(), func(t *testing.T) {
				result := record(core.AssetClassVideo, map[string]any{
					"doc":                 map[string]any{"Filename": "a"},
					"thumbnail":           "/thumbnails/a_thumbnail_1.jpg",
					"locationSource":      "CDN",
					"locationDestination": "archive",
				})

				next := e.BuildInput(result)

				require.Equal(t, result.Asset, next.Asset)
				require.Equal(t, result.AssetClass, next.AssetClass)
				require.Equal(t, result.CatalogKey, next.CatalogKey)

				for k, v := range result.Fields {
					if contains(e.Input.Drop, k) {
						require.NotContains(t, next.Fields, k)
						continue
					}

					require.Equal(t, v, next.Fields[k])
				}

				// The result itself is never modified
				require.Contains(t, result.Fields, "doc")
			})
		}
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}

	return false
}

func TestLookup_Deterministic(t *testing.T) {
	d := MustBuiltin(Ingest)
	r := record(core.AssetClassAudio, nil)

	a, err := d.Lookup("registerAsset", r)
	require.NoError(t, err)
	b, err := d.Lookup("registerAsset", r)
	require.NoError(t, err)

	require.Same(t, a, b)
}

func TestDefinition_Activities(t *testing.T) {
	require.Equal(t, []string{"deleteFiles", "moveFiles", "cleanUpLandingPad"}, MustBuiltin(Lifecycle).Activities())
	require.Len(t, MustBuiltin(Ingest).Queues(), 10)
}
