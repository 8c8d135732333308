package stages

import (
	"context"
	"fmt"

	"github.com/cschleiden/go-mediaflow/activity"
	"github.com/cschleiden/go-mediaflow/core"
	"github.com/cschleiden/go-mediaflow/log"
)

func sourceTier(in core.Record) (Tier, error) {
	src := Tier(in.Get(FieldLocationSource))
	if !src.Valid() {
		return "", activity.Failf(ReasonInvalidInput, "invalid source location %q", src)
	}

	return src, nil
}

// MoveFiles moves a distributed asset between storage tiers and records the move in the catalog.
func (s *Stages) MoveFiles(ctx context.Context, in core.Record) (core.Record, error) {
	if err := requireCatalogKey(in); err != nil {
		return core.Record{}, err
	}

	src, err := sourceTier(in)
	if err != nil {
		return core.Record{}, err
	}

	dst := Tier(in.Get(FieldLocationDestination))
	if !dst.Valid() {
		return core.Record{}, activity.Failf(ReasonInvalidInput, "invalid destination location %q", dst)
	}

	logger := s.log(ctx).With(log.CatalogKeyKey, in.CatalogKey)

	var staging string
	if src != dst {
		staging, err = s.store.Move(ctx, objectKey(in.Asset), src, dst)
		if err != nil {
			return core.Record{}, activity.WrapFailure(ReasonMove, err)
		}
	} else {
		logger.InfoContext(ctx, "asset already in destination", "location", dst)
	}

	entry := newAuditEntry(s.clock.Now(), fmt.Sprintf("Asset moved from %s to %s", src, dst), executionID(ctx))
	if err := s.catalog.Relocate(ctx, in.CatalogKey, string(dst), entry); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonCatalog, err)
	}

	out := core.Record{}.With(FieldFileLocation, string(dst))
	if staging != "" {
		logger.DebugContext(ctx, "move staged through working area", "dir", staging)
		out = out.With(FieldStagingPath, staging)
	}

	return out, nil
}

// DeleteFiles removes a distributed asset from its tier. The catalog entry is kept in the delete
// location so the asset can be registered again later.
func (s *Stages) DeleteFiles(ctx context.Context, in core.Record) (core.Record, error) {
	if err := requireCatalogKey(in); err != nil {
		return core.Record{}, err
	}

	src, err := sourceTier(in)
	if err != nil {
		return core.Record{}, err
	}

	if err := s.store.Delete(ctx, objectKey(in.Asset), src); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonDelete, err)
	}

	entry := newAuditEntry(s.clock.Now(), fmt.Sprintf("Asset removed from %s", src), executionID(ctx))
	if err := s.catalog.Relocate(ctx, in.CatalogKey, LocationDelete, entry); err != nil {
		return core.Record{}, activity.WrapFailure(ReasonCatalog, err)
	}

	return core.Record{}.
		With(FieldFileLocation, LocationDelete).
		With(FieldResult, resultSuccess), nil
}
