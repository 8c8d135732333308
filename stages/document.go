package stages

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cschleiden/go-mediaflow/core"
)

// Document keys.
const (
	DocFilename     = "Filename"
	DocExtension    = "Extension"
	DocAssetClass   = "Asset_Class"
	DocChecksum     = "Checksum"
	DocImportedTime = "Imported_Time"
	DocFileLocation = "File_Location"
	DocUserFields   = "UserFields"
	DocAudit        = "Audit"
	DocThumbnail    = "thumbnail"
	DocStoryboard   = "storyboard"
	DocRendition    = "PDL"

	TrackGeneral = "General"
	TrackImage   = "Image"
	TrackVideo   = "Video"
	TrackAudio   = "Audio"
)

// Document is the catalog entry of an asset. It is a free-form JSON object; the keys stages rely on
// are the Doc* constants.
type Document map[string]any

// AuditEntry records a change to the location of an asset.
type AuditEntry struct {
	User      string `json:"User"`
	Timestamp string `json:"Timestamp"`
	Action    string `json:"Action"`
	Notes     string `json:"Notes"`
}

func (e AuditEntry) toMap() map[string]any {
	return map[string]any{
		"User":      e.User,
		"Timestamp": e.Timestamp,
		"Action":    e.Action,
		"Notes":     e.Notes,
	}
}

func newAuditEntry(now time.Time, action, notes string) AuditEntry {
	return AuditEntry{
		User:      auditUser,
		Timestamp: now.UTC().Format(importedTimeLayout),
		Action:    action,
		Notes:     notes,
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}

	b, err := json.Marshal(d)
	if err != nil {
		panic(fmt.Sprintf("document is not serializable: %v", err))
	}

	var c Document
	if err := json.Unmarshal(b, &c); err != nil {
		panic(fmt.Sprintf("document is not deserializable: %v", err))
	}

	return c
}

func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

func (d Document) Checksum() string {
	return d.String(DocChecksum)
}

func (d Document) Location() string {
	return d.String(DocFileLocation)
}

// AddAudit appends an entry to the audit trail of the document.
func (d Document) AddAudit(e AuditEntry) {
	var trail []any
	switch a := d[DocAudit].(type) {
	case []any:
		trail = a
	case []map[string]any:
		for _, m := range a {
			trail = append(trail, m)
		}
	}

	d[DocAudit] = append(trail, e.toMap())
}

// Audit returns the audit trail of the document.
func (d Document) Audit() []AuditEntry {
	var entries []AuditEntry
	b, err := json.Marshal(d[DocAudit])
	if err != nil {
		return nil
	}

	if err := json.Unmarshal(b, &entries); err != nil {
		return nil
	}

	return entries
}

// Revive turns the document of a deleted asset back into a working one, taking over the filename
// and user fields of a freshly extracted document.
func (d Document) Revive(fresh Document, e AuditEntry) {
	d[DocFileLocation] = LocationWorking
	d[DocFilename] = fresh[DocFilename]
	if uf, ok := fresh[DocUserFields]; ok {
		d[DocUserFields] = uf
	} else {
		delete(d, DocUserFields)
	}

	delete(d, DocRendition)
	delete(d, DocThumbnail)
	delete(d, DocStoryboard)

	d.AddAudit(e)
}

// splitFilename splits a path into its directory, base name without extension, and extension
// without the leading dot.
func splitFilename(path string) (dir, name, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	name = strings.TrimSuffix(base, ext)
	return dir, name, strings.TrimPrefix(ext, ".")
}

// newDocument builds the catalog document of a freshly landed asset. User metadata is merged last
// and wins over extracted values.
func newDocument(asset string, class core.AssetClass, checksum string, importedAt time.Time, tracks Tracks, userMetadata map[string]any) Document {
	_, name, ext := splitFilename(asset)

	doc := Document{
		DocFilename:     name,
		DocExtension:    ext,
		DocAssetClass:   string(class),
		DocChecksum:     checksum,
		DocImportedTime: importedAt.UTC().Format(importedTimeLayout),
		DocFileLocation: LocationWorking,
	}

	for track, values := range tracks {
		if values == nil {
			continue
		}

		doc[track] = values
	}

	if g, ok := doc[TrackGeneral].(map[string]any); ok {
		lat, hasLat := g["Latitude"]
		lon, hasLon := g["Longitude"]
		if hasLat && hasLon {
			g["deviceLocation"] = map[string]any{"lat": lat, "lon": lon}
		}
	}

	for k, v := range userMetadata {
		doc[k] = v
	}

	return doc
}
