// Package stages implements the activities of the ingest and lifecycle pipelines.
//
// Every stage is an activity.Action. Stages talk to the outside world only through the
// collaborator interfaces declared here, so the same stages run against the filesystem store and
// the exec based tools in production and against fakes in tests.
package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/cschleiden/go-mediaflow/activity"
	"github.com/cschleiden/go-mediaflow/classifier"
)

// Activity names.
const (
	IdentifyAssetClass       = "identifyAssetClass"
	ExtractExifMetadata      = "extractExifMetadata"
	ExtractMediainfoMetadata = "extractMediainfoMetadata"
	RegisterAsset            = "registerAsset"
	CreateThumbnailFromImage = "createThumbnailFromImage"
	CreateThumbnailFromVideo = "createThumbnailFromVideo"
	TranscodeVideoDefault    = "transcodeVideoDefault"
	TranscodeAudioDefault    = "transcodeAudioDefault"
	DistributeToStore        = "distributeToStore"
	CleanUpLandingPad        = "cleanUpLandingPad"
	MoveFiles                = "moveFiles"
	DeleteFiles              = "deleteFiles"
)

// Record fields written or read by stages.
const (
	FieldDoc                 = "doc"
	FieldMetadata            = "metadata"
	FieldFileLocation        = "File_Location"
	FieldLocationSource      = "locationSource"
	FieldLocationDestination = "locationDestination"
	FieldThumbnail           = "thumbnail"
	FieldStoryboard          = "storyboard"
	FieldRendition           = "PDL"
	FieldStagingPath         = "stagingPath"
	FieldResult              = "result"
)

// Failure reasons reported by stages.
const (
	ReasonInvalidInput   = "INP-0001_Invalid stage input"
	ReasonMetadata       = "MET-0001_Error in metadata extraction"
	ReasonChecksum       = "MET-0002_Error in checksum calculation"
	ReasonDuplicate      = "REG-0001_Duplicate file entry"
	ReasonCatalog        = "REG-0002_Error updating catalog"
	ReasonImageThumbnail = "THB-0001_Error in image thumbnail creation"
	ReasonVideoThumbnail = "THB-0002_Error in video thumbnail creation"
	ReasonVideoTranscode = "TRC-0001_Error in MP4 conversation"
	ReasonAudioTranscode = "TRC-0002_Error in audio conversion"
	ReasonDistribute     = "DST-0001_Error distributing asset"
	ReasonCleanUp        = "CLN-0001_Error cleaning up landing pad"
	ReasonMove           = "MOV-0001_Error moving asset"
	ReasonDelete         = "DEL-0001_Error deleting asset"
)

const (
	resultSuccess         = "success"
	auditUser             = "System"
	importedTimeLayout    = "2006-01-02T15:04:05+0000"
	thumbnailsDir         = "thumbnails"
	convertedDir          = "converted"
	thumbnailSuffix       = "_thumbnail.jpg"
	renditionVideoSuffix  = "_PDL.mp4"
	renditionAudioSuffix  = "_PDL.mp3"
	storyboardFramesGlob  = "_thumbnail_*.jpg"
	storyboardVTTSuffix   = ".vtt"
	thumbnailPositionFrac = 0.25
)

// Tier is a storage location of a distributed asset.
type Tier string

const (
	TierCDN      Tier = "CDN"
	TierNearLine Tier = "near_line"
	TierArchive  Tier = "archive"

	// LocationDelete is the catalog location of deleted assets. It is a valid move destination but
	// not a tier.
	LocationDelete = "delete"

	// LocationWorking is the catalog location of assets that have not been distributed yet.
	LocationWorking = "working"
)

func (t Tier) Valid() bool {
	switch t {
	case TierCDN, TierNearLine, TierArchive:
		return true
	}

	return false
}

var (
	ErrAssetExists   = errors.New("asset already exists")
	ErrAssetNotFound = errors.New("asset not found")
)

// ObjectStore holds the files of assets. Landing and working files are addressed by path,
// distributed assets by their key within a tier.
type ObjectStore interface {
	// Open opens a file in the landing or working area.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Dir makes sure the named directory next to the given file exists and returns its path.
	Dir(ctx context.Context, path, name string) (string, error)

	// Publish copies every file below dir into tier under key.
	Publish(ctx context.Context, dir, key string, tier Tier) error

	// Move moves every object under key from one tier to another. If the move is staged through
	// the working area, the staging directory is returned and must be cleaned up by the caller.
	Move(ctx context.Context, key string, from, to Tier) (string, error)

	// Delete removes every object under key from tier.
	Delete(ctx context.Context, key string, tier Tier) error

	// RemoveAll removes a directory of the landing or working area with everything in it.
	RemoveAll(ctx context.Context, dir string) error
}

// Catalog stores the metadata documents of assets, keyed by their checksum.
type Catalog interface {
	// Insert adds a document. ErrAssetExists is returned if the key is taken.
	Insert(ctx context.Context, key string, doc Document) error

	// Revive replaces the document of a deleted asset and appends an audit entry.
	// ErrAssetExists is returned if the asset exists and isn't deleted.
	Revive(ctx context.Context, key string, doc Document, entry AuditEntry) error

	// Update sets top level fields of a document.
	Update(ctx context.Context, key string, fields map[string]any) error

	// Relocate sets the location of an asset and appends an audit entry.
	Relocate(ctx context.Context, key, location string, entry AuditEntry) error

	// Get returns a copy of a document.
	Get(ctx context.Context, key string) (Document, error)
}

// Tracks are the metadata tracks reported by a tool, keyed by track type ("General", "Image",
// "Video", "Audio").
type Tracks map[string]map[string]any

// MetadataExtractor reads technical metadata from media files.
type MetadataExtractor interface {
	Exif(ctx context.Context, path string) (Tracks, error)
	Mediainfo(ctx context.Context, path string) (Tracks, error)
}

// MediaTools derive renditions from media files. Implementations write to dst and return the tool
// output for diagnostics.
type MediaTools interface {
	ImageThumbnail(ctx context.Context, src, dst string) ([]byte, error)

	// VideoFrames writes one frame per second to dstPattern, a printf style pattern with a single
	// %d for the frame number.
	VideoFrames(ctx context.Context, src, dstPattern string) ([]byte, error)

	TranscodeVideo(ctx context.Context, src, dst string) ([]byte, error)
	TranscodeAudio(ctx context.Context, src, dst string) ([]byte, error)
}

type Options struct {
	Classifier *classifier.Classifier
	Store      ObjectStore
	Catalog    Catalog
	Extractor  MetadataExtractor
	Tools      MediaTools

	// StoryboardBaseURL prefixes the frame references written to video storyboards.
	StoryboardBaseURL string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Stages runs the activities of both pipelines.
type Stages struct {
	classifier *classifier.Classifier
	store      ObjectStore
	catalog    Catalog
	extractor  MetadataExtractor
	tools      MediaTools

	storyboardBaseURL string

	clock  clock.Clock
	logger *slog.Logger
}

func New(options Options) (*Stages, error) {
	if options.Classifier == nil {
		c, err := classifier.New(classifier.DefaultLists)
		if err != nil {
			return nil, err
		}

		options.Classifier = c
	}

	switch {
	case options.Store == nil:
		return nil, errors.New("stages: object store is required")
	case options.Catalog == nil:
		return nil, errors.New("stages: catalog is required")
	case options.Extractor == nil:
		return nil, errors.New("stages: metadata extractor is required")
	case options.Tools == nil:
		return nil, errors.New("stages: media tools are required")
	}

	if options.Clock == nil {
		options.Clock = clock.New()
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &Stages{
		classifier:        options.Classifier,
		store:             options.Store,
		catalog:           options.Catalog,
		extractor:         options.Extractor,
		tools:             options.Tools,
		storyboardBaseURL: options.StoryboardBaseURL,
		clock:             options.Clock,
		logger:            options.Logger,
	}, nil
}

// Actions returns every stage keyed by its activity name.
func (s *Stages) Actions() map[string]activity.Action {
	return map[string]activity.Action{
		IdentifyAssetClass:       activity.ActionFunc(s.IdentifyAssetClass),
		ExtractExifMetadata:      activity.ActionFunc(s.ExtractExifMetadata),
		ExtractMediainfoMetadata: activity.ActionFunc(s.ExtractMediainfoMetadata),
		RegisterAsset:            activity.ActionFunc(s.RegisterAsset),
		CreateThumbnailFromImage: activity.ActionFunc(s.CreateThumbnailFromImage),
		CreateThumbnailFromVideo: activity.ActionFunc(s.CreateThumbnailFromVideo),
		TranscodeVideoDefault:    activity.ActionFunc(s.TranscodeVideoDefault),
		TranscodeAudioDefault:    activity.ActionFunc(s.TranscodeAudioDefault),
		DistributeToStore:        activity.ActionFunc(s.DistributeToStore),
		CleanUpLandingPad:        activity.ActionFunc(s.CleanUpLandingPad),
		MoveFiles:                activity.ActionFunc(s.MoveFiles),
		DeleteFiles:              activity.ActionFunc(s.DeleteFiles),
	}
}

// Select returns the named stages. Unknown names are rejected.
func (s *Stages) Select(names ...string) (map[string]activity.Action, error) {
	all := s.Actions()
	if len(names) == 0 {
		return all, nil
	}

	selected := make(map[string]activity.Action, len(names))
	for _, name := range names {
		a, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unknown activity %q", name)
		}

		selected[name] = a
	}

	return selected, nil
}

func (s *Stages) log(ctx context.Context) *slog.Logger {
	if activity.Execution(ctx) == nil {
		return s.logger
	}

	return activity.Logger(ctx)
}
