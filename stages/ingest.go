package stages

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cschleiden/go-mediaflow/activity"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/log"
)

// toolOutput logs what a media tool printed. It is not part of the stage result.
func (s *Stages) toolOutput(ctx context.Context, out []byte) {
	if len(out) > 0 {
		s.log(ctx).DebugContext(ctx, "tool output", "output", strings.ToValidUTF8(string(out), "?"))
	}
}

func executionID(ctx context.Context) string {
	if e := activity.Execution(ctx); e != nil {
		return e.ID
	}

	return ""
}

func requireAsset(in core.Record) error {
	if in.Asset == "" {
		return activity.NewFailure(ReasonInvalidInput, "no asset given")
	}

	return nil
}

func requireCatalogKey(in core.Record) error {
	if err := requireAsset(in); err != nil {
		return err
	}

	if in.CatalogKey == "" {
		return activity.Failf(ReasonInvalidInput, "asset %s has no catalog key", in.Asset)
	}

	return nil
}

// objectKey is the key of an asset in the storage tiers.
func objectKey(asset string) string {
	_, name, _ := splitFilename(asset)
	return name
}

// IdentifyAssetClass classifies the asset by its file extension.
func (s *Stages) IdentifyAssetClass(ctx context.Context, in core.Record) (core.Record, error) {
	if err := requireAsset(in); err != nil {
		return core.Record{}, err
	}

	class := s.classifier.ClassifyPath(in.Asset)
	s.log(ctx).DebugContext(ctx, "identified asset class", log.AssetKey, in.Asset, log.AssetClassKey, class)

	return core.Record{AssetClass: class}, nil
}

// ExtractExifMetadata builds the catalog document of an image.
func (s *Stages) ExtractExifMetadata(ctx context.Context, in core.Record) (core.Record, error) {
	return s.extractMetadata(ctx, in, s.extractor.Exif)
}

// ExtractMediainfoMetadata builds the catalog document of video, audio, and other assets.
func (s *Stages) ExtractMediainfoMetadata(ctx context.Context, in core.Record) (core.Record, error) {
	return s.extractMetadata(ctx, in, s.extractor.Mediainfo)
}

func (s *Stages) extractMetadata(
	ctx context.Context, in core.Record, extract func(context.Context, string) (Tracks, error),
) (core.Record, error) {
	if err := requireAsset(in); err != nil {
		return core.Record{}, err
	}

	checksum, err := s.checksum(ctx, in.Asset)
	if err != nil {
		return core.Record{}, activity.WrapFailure(ReasonChecksum, err)
	}

	tracks, err := extract(ctx, in.Asset)
	if err != nil {
		return core.Record{}, activity.WrapFailure(ReasonMetadata, err)
	}

	var userMetadata map[string]any
	if _, ok := in.Fields[FieldMetadata]; ok {
		if err := in.Decode(FieldMetadata, &userMetadata); err != nil {
			return core.Record{}, activity.WrapFailure(ReasonInvalidInput, err)
		}
	}

	doc := newDocument(in.Asset, in.AssetClass, checksum, s.clock.Now(), tracks, userMetadata)

	return core.Record{}.With(FieldDoc, doc), nil
}

// checksum is the hex encoded SHA-1 of the file contents.
func (s *Stages) checksum(ctx context.Context, path string) (string, error) {
	f, err := s.store.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// RegisterAsset adds the document to the catalog. An asset that was deleted before is revived;
// any other asset with the same checksum fails the execution.
func (s *Stages) RegisterAsset(ctx context.Context, in core.Record) (core.Record, error) {
	var doc Document
	if err := in.Decode(FieldDoc, &doc); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonInvalidInput, err)
	}

	key := doc.Checksum()
	if key == "" {
		return core.Record{}, activity.NewFailure(ReasonInvalidInput, "document has no checksum")
	}

	logger := s.log(ctx).With(log.CatalogKeyKey, key)
	now := s.clock.Now()

	doc.AddAudit(newAuditEntry(now, "Asset registered", executionID(ctx)))
	err := s.catalog.Insert(ctx, key, doc)
	if errors.Is(err, ErrAssetExists) {
		err = s.catalog.Revive(ctx, key, doc, newAuditEntry(now, "Asset registered again", executionID(ctx)))
		if errors.Is(err, ErrAssetExists) {
			return core.Record{}, activity.Failf(ReasonDuplicate, "The file with ID %s already exists", key)
		}

		if err == nil {
			logger.InfoContext(ctx, "revived deleted asset")
		}
	}

	if err != nil {
		return core.Record{}, activity.WrapFailure(ReasonCatalog, err)
	}

	return core.Record{CatalogKey: key}, nil
}

// CreateThumbnailFromImage scales the image down to a thumbnail next to the asset.
func (s *Stages) CreateThumbnailFromImage(ctx context.Context, in core.Record) (core.Record, error) {
	if err := requireCatalogKey(in); err != nil {
		return core.Record{}, err
	}

	_, name, _ := splitFilename(in.Asset)
	dir, err := s.store.Dir(ctx, in.Asset, thumbnailsDir)
	if err != nil {
		return core.Record{}, activity.WrapFailure(ReasonImageThumbnail, err)
	}

	file := name + thumbnailSuffix
	out, err := s.tools.ImageThumbnail(ctx, in.Asset, filepath.Join(dir, file))
	if err != nil {
		return core.Record{}, activity.WrapFailure(ReasonImageThumbnail, err)
	}

	ref := "/" + thumbnailsDir + "/" + file
	if err := s.catalog.Update(ctx, in.CatalogKey, map[string]any{DocThumbnail: ref}); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonCatalog, err)
	}

	s.toolOutput(ctx, out)

	return core.Record{}.With(FieldThumbnail, ref), nil
}

// CreateThumbnailFromVideo extracts a frame per second, writes a WebVTT storyboard referencing
// them, and picks the frame a quarter into the video as thumbnail.
func (s *Stages) CreateThumbnailFromVideo(ctx context.Context, in core.Record) (core.Record, error) {
	if err := requireCatalogKey(in); err != nil {
		return core.Record{}, err
	}

	_, name, _ := splitFilename(in.Asset)
	dir, err := s.store.Dir(ctx, in.Asset, thumbnailsDir)
	if err != nil {
		return core.Record{}, activity.WrapFailure(ReasonVideoThumbnail, err)
	}

	out, err := s.tools.VideoFrames(ctx, in.Asset, filepath.Join(dir, name+"_thumbnail_%d.jpg"))
	if err != nil {
		return core.Record{}, activity.WrapFailure(ReasonVideoThumbnail, err)
	}

	frames, err := filepath.Glob(filepath.Join(dir, name+storyboardFramesGlob))
	if err != nil {
		return core.Record{}, activity.WrapFailure(ReasonVideoThumbnail, err)
	}

	if len(frames) == 0 {
		return core.Record{}, activity.Failf(ReasonVideoThumbnail, "no frames extracted from %s", in.Asset)
	}

	vtt := name + storyboardVTTSuffix
	storyboard := buildStoryboard(s.storyboardBaseURL, name, len(frames))
	if err := os.WriteFile(filepath.Join(dir, vtt), []byte(storyboard), 0o644); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonVideoThumbnail, err)
	}

	index := max(1, int(math.Trunc(float64(len(frames))*thumbnailPositionFrac)))
	thumbnail := fmt.Sprintf("/%s/%s_thumbnail_%d.jpg", thumbnailsDir, name, index)
	storyboardRef := "/" + thumbnailsDir + "/" + vtt

	if err := s.catalog.Update(ctx, in.CatalogKey, map[string]any{
		DocThumbnail:  thumbnail,
		DocStoryboard: storyboardRef,
	}); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonCatalog, err)
	}

	s.toolOutput(ctx, out)

	return core.Record{}.
		With(FieldThumbnail, thumbnail).
		With(FieldStoryboard, storyboardRef), nil
}

// buildStoryboard renders a WebVTT file with one cue per second, each pointing at its frame.
func buildStoryboard(baseURL, name string, frames int) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT")

	span := func(second int) string {
		return fmt.Sprintf("%02d:%02d:%02d.000", second/3600, second/60%60, second%60)
	}

	for i := 0; i < frames; i++ {
		fmt.Fprintf(&sb, "\n\n%s --> %s\n%s/%s/%s/%s_thumbnail_%d.jpg",
			span(i), span(i+1), strings.TrimSuffix(baseURL, "/"), name, thumbnailsDir, name, i+1)
	}

	sb.WriteString("\n")

	return sb.String()
}

// TranscodeVideoDefault creates the default MP4 rendition of a video.
func (s *Stages) TranscodeVideoDefault(ctx context.Context, in core.Record) (core.Record, error) {
	return s.transcode(ctx, in, renditionVideoSuffix, ReasonVideoTranscode, s.tools.TranscodeVideo)
}

// TranscodeAudioDefault creates the default MP3 rendition of an audio file.
func (s *Stages) TranscodeAudioDefault(ctx context.Context, in core.Record) (core.Record, error) {
	return s.transcode(ctx, in, renditionAudioSuffix, ReasonAudioTranscode, s.tools.TranscodeAudio)
}

func (s *Stages) transcode(
	ctx context.Context, in core.Record, suffix, reason string, run func(ctx context.Context, src, dst string) ([]byte, error),
) (core.Record, error) {
	if err := requireCatalogKey(in); err != nil {
		return core.Record{}, err
	}

	_, name, _ := splitFilename(in.Asset)
	dir, err := s.store.Dir(ctx, in.Asset, convertedDir)
	if err != nil {
		return core.Record{}, activity.WrapFailure(reason, err)
	}

	file := name + suffix
	out, err := run(ctx, in.Asset, filepath.Join(dir, file))
	if err != nil {
		return core.Record{}, activity.WrapFailure(reason, err)
	}

	ref := "/" + convertedDir + "/" + file
	if err := s.catalog.Update(ctx, in.CatalogKey, map[string]any{DocRendition: ref}); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonCatalog, err)
	}

	s.toolOutput(ctx, out)

	return core.Record{}.With(FieldRendition, ref), nil
}

// DistributeToStore publishes the asset directory with all derived files to the CDN tier.
func (s *Stages) DistributeToStore(ctx context.Context, in core.Record) (core.Record, error) {
	if err := requireCatalogKey(in); err != nil {
		return core.Record{}, err
	}

	dir, _, _ := splitFilename(in.Asset)
	if err := s.store.Publish(ctx, dir, objectKey(in.Asset), TierCDN); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonDistribute, err)
	}

	if err := s.catalog.Update(ctx, in.CatalogKey, map[string]any{DocFileLocation: string(TierCDN)}); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonCatalog, err)
	}

	return core.Record{}.
		With(FieldFileLocation, string(TierCDN)).
		With(FieldResult, resultSuccess), nil
}

// CleanUpLandingPad removes the working copy of an asset. After ingestion that's the asset
// directory, after a lifecycle move the staging directory, if there was one.
func (s *Stages) CleanUpLandingPad(ctx context.Context, in core.Record) (core.Record, error) {
	if err := requireAsset(in); err != nil {
		return core.Record{}, err
	}

	dir := in.Get(FieldStagingPath)
	if dir == "" {
		if _, ok := in.Lookup(FieldLocationSource); ok {
			s.log(ctx).DebugContext(ctx, "nothing staged, skipping clean up", log.AssetKey, in.Asset)
			return core.Record{}.With(FieldResult, resultSuccess), nil
		}

		dir, _, _ = splitFilename(in.Asset)
	}

	if err := s.store.RemoveAll(ctx, dir); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonCleanUp, err)
	}

	s.log(ctx).DebugContext(ctx, "removed working copy", log.AssetKey, in.Asset, "dir", dir)

	return core.Record{}.With(FieldResult, resultSuccess), nil
}
