package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

type AssetClass string

const (
	AssetClassImage AssetClass = "Image"
	AssetClassVideo AssetClass = "Video"
	AssetClassAudio AssetClass = "Audio"
	AssetClassOther AssetClass = "Other"
)

func (c AssetClass) Valid() bool {
	switch c {
	case AssetClassImage, AssetClassVideo, AssetClassAudio, AssetClassOther:
		return true
	}

	return false
}

const (
	FieldAsset      = "asset"
	FieldAssetClass = "assetClass"
	FieldCatalogKey = "catalogKey"
)

// Record is the document carried from stage to stage. Asset, AssetClass, and CatalogKey are
// threaded through every stage; Fields hold stage specific values and only grow.
type Record struct {
	Asset      string         `json:"asset"`
	AssetClass AssetClass     `json:"assetClass,omitempty"`
	CatalogKey string         `json:"catalogKey,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

func NewRecord(asset string) Record {
	return Record{Asset: asset, Fields: map[string]any{}}
}

// Clone returns a copy of the record that does not share the fields map.
func (r Record) Clone() Record {
	c := r
	c.Fields = maps.Clone(r.Fields)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}

	return c
}

// With returns a copy of the record with the given field set.
func (r Record) With(key string, value any) Record {
	c := r.Clone()
	c.Fields[key] = value
	return c
}

// Merge overlays other on top of r. Empty carried values in other never clear the values of r.
func (r Record) Merge(other Record) Record {
	c := r.Clone()
	if other.Asset != "" {
		c.Asset = other.Asset
	}
	if other.AssetClass != "" {
		c.AssetClass = other.AssetClass
	}
	if other.CatalogKey != "" {
		c.CatalogKey = other.CatalogKey
	}
	for k, v := range other.Fields {
		c.Fields[k] = v
	}

	return c
}

// Lookup resolves a carried field or a stage field to its string form.
func (r Record) Lookup(name string) (string, bool) {
	switch name {
	case FieldAsset:
		return r.Asset, r.Asset != ""
	case FieldAssetClass:
		return string(r.AssetClass), r.AssetClass != ""
	case FieldCatalogKey:
		return r.CatalogKey, r.CatalogKey != ""
	}

	v, ok := r.Fields[name]
	if !ok || v == nil {
		return "", false
	}

	switch v := v.(type) {
	case string:
		return v, true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// Get returns the named field as a string, or an empty string if it is not set.
func (r Record) Get(name string) string {
	v, _ := r.Lookup(name)
	return v
}

// Decode unmarshals the named stage field into v.
func (r Record) Decode(name string, v any) error {
	raw, ok := r.Fields[name]
	if !ok {
		return fmt.Errorf("field %q not set", name)
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshaling field %q: %w", name, err)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding field %q: %w", name, err)
	}

	return nil
}

func (r Record) Summary() string {
	var sb strings.Builder
	sb.WriteString(r.Asset)
	if r.AssetClass != "" {
		sb.WriteString(" (")
		sb.WriteString(string(r.AssetClass))
		sb.WriteString(")")
	}
	if r.CatalogKey != "" {
		sb.WriteString(" key=")
		sb.WriteString(r.CatalogKey)
	}

	return sb.String()
}
