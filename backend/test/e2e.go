package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/activity"
	"github.com/cschleiden/go-mediaflow/backend"
	"github.com/cschleiden/go-mediaflow/classifier"
	"github.com/cschleiden/go-mediaflow/client"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/decider"
	"github.com/cschleiden/go-mediaflow/pipeline"
	"github.com/cschleiden/go-mediaflow/worker"
)

// trail records the activities run per execution.
type trail struct {
	mu   sync.Mutex
	runs map[string][]string
}

func (tr *trail) record(ctx context.Context) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	id := activity.Execution(ctx).ID
	tr.runs[id] = append(tr.runs[id], activity.Name(ctx))
}

func (tr *trail) get(id string) []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return append([]string(nil), tr.runs[id]...)
}

// stubActions returns actions for every activity of both pipelines that only touch the record.
// Overrides replace single actions.
func stubActions(t *testing.T, tr *trail, overrides map[string]activity.Action) map[string]activity.Action {
	c, err := classifier.New(classifier.DefaultLists)
	require.NoError(t, err)

	pass := func(f func(in core.Record) (core.Record, error)) activity.Action {
		return activity.ActionFunc(func(ctx context.Context, in core.Record) (core.Record, error) {
			tr.record(ctx)
			return f(in)
		})
	}

	mark := func(in core.Record) (core.Record, error) {
		return core.Record{}.With("seen", "yes"), nil
	}

	actions := map[string]activity.Action{
		"identifyAssetClass": pass(func(in core.Record) (core.Record, error) {
			return core.Record{AssetClass: c.ClassifyPath(in.Asset)}, nil
		}),
		"extractExifMetadata":      pass(mark),
		"extractMediainfoMetadata": pass(mark),
		"registerAsset": pass(func(in core.Record) (core.Record, error) {
			return core.Record{CatalogKey: "key-" + in.Asset}.With("doc", "metadata"), nil
		}),
		"createThumbnailFromImage": pass(mark),
		"createThumbnailFromVideo": pass(mark),
		"transcodeVideoDefault":    pass(mark),
		"transcodeAudioDefault":    pass(mark),
		"distributeToStore": pass(func(in core.Record) (core.Record, error) {
			return core.Record{}.With("File_Location", "CDN"), nil
		}),
		"cleanUpLandingPad": pass(mark),
		"moveFiles": pass(func(in core.Record) (core.Record, error) {
			return core.Record{}.With("File_Location", in.Get("locationDestination")), nil
		}),
		"deleteFiles": pass(func(in core.Record) (core.Record, error) {
			return core.Record{}.With("File_Location", "delete"), nil
		}),
	}

	for name, a := range overrides {
		actions[name] = a
	}

	return actions
}

// EndToEndBackendTest runs both pipelines against stub actions on the given backend.
func EndToEndBackendTest(t *testing.T, setup func(options ...backend.BackendOption) backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name      string
		overrides func(tr *trail) map[string]activity.Action
		f         func(t *testing.T, ctx context.Context, c *client.Client, tr *trail)
	}{
		{
			name: "Ingest_Image",
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				e, r, err := run(t, ctx, c, pipeline.Ingest, core.NewRecord("landing/photo.JPG"))
				require.NoError(t, err)

				require.Equal(t, []string{
					"identifyAssetClass", "extractExifMetadata", "registerAsset",
					"createThumbnailFromImage", "distributeToStore", "cleanUpLandingPad",
				}, tr.get(e.ID))

				require.Equal(t, core.AssetClassImage, r.AssetClass)
				require.Equal(t, "key-landing/photo.JPG", r.CatalogKey)
				require.Equal(t, "CDN", r.Get("File_Location"))
				require.Equal(t, "yes", r.Get("seen"))

				// Dropped after registration
				_, ok := r.Lookup("doc")
				require.False(t, ok)
			},
		},
		{
			name: "Ingest_Video",
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				e, _, err := run(t, ctx, c, pipeline.Ingest, core.NewRecord("landing/clip.mov"))
				require.NoError(t, err)

				require.Equal(t, []string{
					"identifyAssetClass", "extractMediainfoMetadata", "registerAsset",
					"createThumbnailFromVideo", "transcodeVideoDefault", "distributeToStore", "cleanUpLandingPad",
				}, tr.get(e.ID))
			},
		},
		{
			name: "Ingest_Audio",
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				e, r, err := run(t, ctx, c, pipeline.Ingest, core.NewRecord("landing/song.mp3"))
				require.NoError(t, err)

				require.Equal(t, []string{
					"identifyAssetClass", "extractMediainfoMetadata", "registerAsset",
					"transcodeAudioDefault", "distributeToStore", "cleanUpLandingPad",
				}, tr.get(e.ID))
				require.Equal(t, core.AssetClassAudio, r.AssetClass)
			},
		},
		{
			name: "Ingest_Other",
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				e, r, err := run(t, ctx, c, pipeline.Ingest, core.NewRecord("landing/report.pdf"))
				require.NoError(t, err)

				require.Equal(t, []string{
					"identifyAssetClass", "extractMediainfoMetadata", "registerAsset",
					"distributeToStore", "cleanUpLandingPad",
				}, tr.get(e.ID))
				require.Equal(t, core.AssetClassOther, r.AssetClass)
			},
		},
		{
			name: "Ingest_RegistrationFailure",
			overrides: func(tr *trail) map[string]activity.Action {
				return map[string]activity.Action{
					"registerAsset": activity.ActionFunc(func(ctx context.Context, in core.Record) (core.Record, error) {
						tr.record(ctx)
						return core.Record{}, activity.Failf("REG-0001_Duplicate file entry", "The file with ID %s already exists", "abc")
					}),
				}
			},
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				e, _, err := run(t, ctx, c, pipeline.Ingest, core.NewRecord("landing/photo.jpg"))

				var ferr *client.ExecutionFailedError
				require.ErrorAs(t, err, &ferr)
				require.Equal(t, "registerAsset", ferr.Failure.Activity)
				require.Equal(t, "REG-0001_Duplicate file entry", ferr.Failure.Reason)
				require.Equal(t, "The file with ID abc already exists", ferr.Failure.Detail)

				require.Equal(t, []string{"identifyAssetClass", "extractExifMetadata", "registerAsset"}, tr.get(e.ID))
			},
		},
		{
			name: "Ingest_ActionPanics",
			overrides: func(tr *trail) map[string]activity.Action {
				return map[string]activity.Action{
					"createThumbnailFromImage": activity.ActionFunc(func(ctx context.Context, in core.Record) (core.Record, error) {
						panic("thumbnail tool crashed")
					}),
				}
			},
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				_, _, err := run(t, ctx, c, pipeline.Ingest, core.NewRecord("landing/photo.jpg"))

				var ferr *client.ExecutionFailedError
				require.ErrorAs(t, err, &ferr)
				require.Equal(t, activity.ReasonActivityPanic, ferr.Failure.Reason)
				require.Contains(t, ferr.Failure.Detail, "thumbnail tool crashed")
			},
		},
		{
			name: "Ingest_RoutingError",
			overrides: func(tr *trail) map[string]activity.Action {
				return map[string]activity.Action{
					// An invalid class cannot be routed after registration
					"identifyAssetClass": activity.ActionFunc(func(ctx context.Context, in core.Record) (core.Record, error) {
						return core.Record{AssetClass: "Hologram"}, nil
					}),
				}
			},
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				_, _, err := run(t, ctx, c, pipeline.Ingest, core.NewRecord("landing/photo.jpg"))

				var ferr *client.ExecutionFailedError
				require.ErrorAs(t, err, &ferr)
				require.Equal(t, decider.ReasonRoutingError, ferr.Failure.Reason)
			},
		},
		{
			name: "Lifecycle_Delete",
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				e, r, err := run(t, ctx, c, pipeline.Lifecycle, lifecycleRecord("CDN", "delete"))
				require.NoError(t, err)

				require.Equal(t, []string{"deleteFiles"}, tr.get(e.ID))
				require.Equal(t, "delete", r.Get("File_Location"))
			},
		},
		{
			name: "Lifecycle_MoveToArchive",
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				e, r, err := run(t, ctx, c, pipeline.Lifecycle, lifecycleRecord("CDN", "archive"))
				require.NoError(t, err)

				require.Equal(t, []string{"moveFiles", "cleanUpLandingPad"}, tr.get(e.ID))
				require.Equal(t, "archive", r.Get("File_Location"))
			},
		},
		{
			name: "Lifecycle_MoveBetweenOnlineTiers",
			f: func(t *testing.T, ctx context.Context, c *client.Client, tr *trail) {
				e, r, err := run(t, ctx, c, pipeline.Lifecycle, lifecycleRecord("CDN", "near_line"))
				require.NoError(t, err)

				require.Equal(t, []string{"moveFiles"}, tr.get(e.ID))
				require.Equal(t, "near_line", r.Get("File_Location"))
				require.Equal(t, "CDN", r.Get("locationSource"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if testing.Short() {
				t.Skip()
			}

			b := setup()
			if teardown != nil {
				defer teardown(b)
			}

			tr := &trail{runs: make(map[string][]string)}

			var overrides map[string]activity.Action
			if tt.overrides != nil {
				overrides = tt.overrides(tr)
			}

			definitions := []*pipeline.Definition{
				pipeline.MustBuiltin(pipeline.Ingest),
				pipeline.MustBuiltin(pipeline.Lifecycle),
			}

			w, err := worker.New(b, definitions, stubActions(t, tr, overrides), &worker.Options{
				DecisionWorkerOptions: worker.DecisionWorkerOptions{
					DecisionPollingInterval: 5 * time.Millisecond,
					DecisionPollTimeout:     100 * time.Millisecond,
				},
				ActivityWorkerOptions: worker.ActivityWorkerOptions{
					ActivityPollingInterval: 5 * time.Millisecond,
					ActivityPollTimeout:     100 * time.Millisecond,
				},
			})
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())

			require.NoError(t, w.Start(ctx))

			tt.f(t, ctx, client.New(b, definitions...), tr)

			cancel()
			require.NoError(t, w.WaitForCompletion())
		})
	}
}

func lifecycleRecord(source, destination string) core.Record {
	r := core.NewRecord("assets/photo.jpg").With("locationSource", source).With("locationDestination", destination)
	r.CatalogKey = "key-photo"

	return r
}

func run(t *testing.T, ctx context.Context, c *client.Client, workflowType string, input core.Record) (*core.Execution, core.Record, error) {
	e, err := c.StartExecution(ctx, client.ExecutionOptions{ExecutionID: uuid.NewString()}, workflowType, input)
	require.NoError(t, err)

	r, err := c.GetExecutionResult(ctx, e, 10*time.Second)

	var ferr *client.ExecutionFailedError
	if err != nil && !errors.As(err, &ferr) {
		require.NoError(t, err)
	}

	return e, r, err
}
