package decider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decision"
	"github.com/cschleiden/go-mediaflow/pipeline"
)

// drive runs an execution to completion by feeding every scheduled activity the result produced
// by complete, returning the sequence of scheduled activities.
func drive(t *testing.T, def *pipeline.Definition, input core.Record, complete func(activity string, in core.Record) core.Record) ([]string, *decision.CompleteExecution) {
	t.Helper()

	h := (&historyBuilder{}).started(input)
	var scheduled []string

	for i := 0; i < 20; i++ {
		d, err := Decide(def, h.events)
		require.NoError(t, err)

		if d.Type == decision.Type_CompleteExecution {
			return scheduled, d.CompleteExecution
		}

		s := d.ScheduleActivity
		scheduled = append(scheduled, s.Activity)
		h.completed(s.Activity, complete(s.Activity, s.Input))
	}

	t.Fatal("execution did not complete")
	return nil, nil
}

func ingestStages(class core.AssetClass) func(string, core.Record) core.Record {
	return func(activity string, in core.Record) core.Record {
		out := in.Clone()
		switch activity {
		case "identifyAssetClass":
			out.AssetClass = class
		case "registerAsset":
			out.CatalogKey = "sha1-of-asset"
		default:
			out.Fields[activity] = "done"
		}

		return out
	}
}

func TestScenario_IngestImage(t *testing.T) {
	scheduled, c := drive(t, pipeline.MustBuiltin(pipeline.Ingest), core.NewRecord("a.jpg"), ingestStages(core.AssetClassImage))

	require.Equal(t, []string{
		"identifyAssetClass", "extractExifMetadata", "registerAsset", "createThumbnailFromImage",
		"distributeToStore", "cleanUpLandingPad",
	}, scheduled)
	require.NotContains(t, scheduled, "transcodeVideoDefault")
	require.NotNil(t, c.Result)
	require.Equal(t, "sha1-of-asset", c.Result.CatalogKey)
	require.Equal(t, core.AssetClassImage, c.Result.AssetClass)
}

func TestScenario_IngestVideo(t *testing.T) {
	scheduled, c := drive(t, pipeline.MustBuiltin(pipeline.Ingest), core.NewRecord("a.mov"), ingestStages(core.AssetClassVideo))

	require.Equal(t, []string{
		"identifyAssetClass", "extractMediainfoMetadata", "registerAsset", "createThumbnailFromVideo",
		"transcodeVideoDefault", "distributeToStore", "cleanUpLandingPad",
	}, scheduled)
	require.Equal(t, "done", c.Result.Fields["transcodeVideoDefault"])
}

func TestScenario_IngestAudioSkipsThumbnail(t *testing.T) {
	scheduled, _ := drive(t, pipeline.MustBuiltin(pipeline.Ingest), core.NewRecord("a.mp3"), ingestStages(core.AssetClassAudio))

	require.Equal(t, []string{
		"identifyAssetClass", "extractMediainfoMetadata", "registerAsset", "transcodeAudioDefault",
		"distributeToStore", "cleanUpLandingPad",
	}, scheduled)
}

func TestScenario_IngestOtherSkipsDerivatives(t *testing.T) {
	scheduled, _ := drive(t, pipeline.MustBuiltin(pipeline.Ingest), core.NewRecord("a.xyz"), ingestStages(core.AssetClassOther))

	require.Equal(t, []string{
		"identifyAssetClass", "extractMediainfoMetadata", "registerAsset", "distributeToStore", "cleanUpLandingPad",
	}, scheduled)
}

func lifecycleInput(source, destination string) core.Record {
	r := core.NewRecord("/assets/k").With("locationSource", source).With("locationDestination", destination)
	r.CatalogKey = "k"
	return r
}

func passthrough(_ string, in core.Record) core.Record {
	return in
}

func TestScenario_LifecycleDelete(t *testing.T) {
	scheduled, c := drive(t, pipeline.MustBuiltin(pipeline.Lifecycle), lifecycleInput("CDN", "delete"), passthrough)

	require.Equal(t, []string{"deleteFiles"}, scheduled)
	require.Equal(t, "k", c.Result.CatalogKey)
}

func TestScenario_LifecycleMove(t *testing.T) {
	tests := []struct {
		source, destination string
		want                []string
	}{
		{"CDN", "near_line", []string{"moveFiles"}},
		{"near_line", "CDN", []string{"moveFiles"}},
		{"CDN", "archive", []string{"moveFiles", "cleanUpLandingPad"}},
		{"archive", "near_line", []string{"moveFiles", "cleanUpLandingPad"}},
	}

	for _, tt := range tests {
		t.Run(tt.source+"->"+tt.destination, func(t *testing.T) {
			scheduled, c := drive(t, pipeline.MustBuiltin(pipeline.Lifecycle), lifecycleInput(tt.source, tt.destination), passthrough)

			require.Equal(t, tt.want, scheduled)
			require.NotNil(t, c.Result)
		})
	}
}
