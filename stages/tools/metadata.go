package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cschleiden/go-mediaflow/stages"
)

const dateLayout = "2006-01-02T15:04:05+0000"

// exifGeneral maps exiftool tags to the general fields of the document.
var exifGeneral = map[string]string{
	"GPSLatitude":  "Latitude",
	"GPSAltitude":  "Altitude",
	"GPSLongitude": "Longitude",
	"Make":         "make",
	"Model":        "model",
	"Software":     "software",
	"GPSDateTime":  "recorded_date",
	"FileSize":     "file_size",
}

// mediainfoGeneral maps QuickTime tags reported by mediainfo to the general fields of the document.
var mediainfoGeneral = map[string]string{
	"com_apple_quicktime_make":             "make",
	"com_apple_quicktime_model":            "model",
	"com_apple_quicktime_creationdate":     "recorded_date",
	"com_apple_quicktime_software":         "software",
	"com_apple_quicktime_location_ISO6709": "iso6709",
}

var mediainfoDates = map[string]bool{
	"Encoded_Date":       true,
	"Tagged_Date":        true,
	"File_Modified_Date": true,
}

func (t *Tools) Exif(ctx context.Context, path string) (stages.Tracks, error) {
	out, err := t.run(ctx, t.exiftool, "-j", "-d", "%Y-%m-%dT%H:%M:%S+0000", "-c", "%+.8f", path)
	if err != nil {
		return nil, err
	}

	return parseExif(out)
}

func parseExif(out []byte) (stages.Tracks, error) {
	var entries []map[string]any
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, fmt.Errorf("parsing exiftool output: %w", err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("exiftool reported no entries")
	}

	image := entries[0]
	delete(image, "ThumbnailImage")

	if alt, ok := image["GPSAltitude"].(string); ok {
		image["GPSAltitude"], _, _ = strings.Cut(alt, " ")
	}

	general := make(map[string]any)
	for tag, field := range exifGeneral {
		if v, ok := image[tag]; ok {
			general[field] = v
			delete(image, tag)
		}
	}

	if _, ok := general["recorded_date"]; !ok {
		if v, ok := image["DateTimeOriginal"]; ok {
			general["recorded_date"] = v
		}
	}

	return stages.Tracks{
		stages.TrackGeneral: general,
		stages.TrackImage:   image,
	}, nil
}

func (t *Tools) Mediainfo(ctx context.Context, path string) (stages.Tracks, error) {
	out, err := t.run(ctx, t.mediainfo, "--Output=JSON", path)
	if err != nil {
		return nil, err
	}

	return parseMediainfo(out)
}

type mediainfoOutput struct {
	Media struct {
		Tracks []map[string]any `json:"track"`
	} `json:"media"`
}

func parseMediainfo(out []byte) (stages.Tracks, error) {
	var mi mediainfoOutput
	if err := json.Unmarshal(out, &mi); err != nil {
		return nil, fmt.Errorf("parsing mediainfo output: %w", err)
	}

	tracks := stages.Tracks{
		stages.TrackGeneral: {},
		stages.TrackVideo:   {},
		stages.TrackAudio:   {},
	}

	for _, track := range mi.Media.Tracks {
		kind, _ := track["@type"].(string)
		values, ok := tracks[kind]
		if !ok || len(values) > 0 {
			// Only the first track of every kind is kept
			continue
		}

		if extra, ok := track["extra"].(map[string]any); ok {
			for k, v := range extra {
				track[k] = v
			}
		}

		for key, value := range track {
			if key == "extra" || strings.HasPrefix(key, "@") {
				continue
			}

			if field, ok := mediainfoGeneral[key]; ok {
				key = field
			}

			if key == "iso6709" {
				if s, ok := value.(string); ok {
					addLocation(tracks[stages.TrackGeneral], s)
				}

				continue
			}

			if mediainfoDates[key] {
				if s, ok := value.(string); ok {
					value = parseDate(s)
				}
			}

			values[key] = value
		}
	}

	return tracks, nil
}

var iso6709 = regexp.MustCompile(`^([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)([+-]\d+(?:\.\d+)?)?`)

// addLocation parses an ISO 6709 location like "+37.3318-122.0312+012.345/" into the general
// fields. Values already set are kept.
func addLocation(general map[string]any, loc string) {
	m := iso6709.FindStringSubmatch(strings.TrimSpace(loc))
	if m == nil {
		return
	}

	set := func(k, v string) {
		if _, ok := general[k]; !ok && v != "" {
			general[k] = v
		}
	}

	set("Latitude", m[1])
	set("Longitude", m[2])
	set("Altitude", m[3])
}

var dateLayouts = []string{
	"UTC 2006-01-02 15:04:05",
	"2006-01-02 15:04:05 UTC",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// parseDate normalizes the dates mediainfo reports. Unknown formats are returned as is.
func parseDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(dateLayout)
		}
	}

	return s
}
