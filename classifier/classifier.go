// Package classifier maps file extensions to asset classes.
package classifier

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cschleiden/go-mediaflow/core"
)

// Lists are the extension lists a classifier is built from.
type Lists struct {
	Audio []string `toml:"audio" json:"audio"`
	Image []string `toml:"image" json:"image"`
	Video []string `toml:"video" json:"video"`
}

// DefaultLists are the extensions recognized out of the box.
var DefaultLists = Lists{
	Audio: []string{"aac", "aif", "aiff", "flac", "m4a", "mp3", "oga", "ogg", "wav", "wma"},
	Image: []string{"bmp", "cr2", "dng", "gif", "heic", "jpeg", "jpg", "nef", "png", "psd", "tif", "tiff", "webp"},
	Video: []string{"3gp", "avi", "flv", "m2ts", "m4v", "mkv", "mov", "mp4", "mpeg", "mpg", "mts", "mxf", "webm", "wmv"},
}

// Classifier is an immutable extension lookup table. It is safe for concurrent use.
type Classifier struct {
	classes map[string]core.AssetClass
}

// New builds a classifier from the given lists. An extension listed under more than one class is
// rejected.
func New(lists Lists) (*Classifier, error) {
	c := &Classifier{classes: make(map[string]core.AssetClass)}

	add := func(class core.AssetClass, exts []string) error {
		for _, ext := range exts {
			ext = normalize(ext)
			if ext == "" {
				continue
			}

			if existing, ok := c.classes[ext]; ok && existing != class {
				return fmt.Errorf("extension %q listed as both %s and %s", ext, existing, class)
			}

			c.classes[ext] = class
		}

		return nil
	}

	if err := add(core.AssetClassAudio, lists.Audio); err != nil {
		return nil, err
	}
	if err := add(core.AssetClassImage, lists.Image); err != nil {
		return nil, err
	}
	if err := add(core.AssetClassVideo, lists.Video); err != nil {
		return nil, err
	}

	return c, nil
}

// Classify returns the asset class of an extension. Case and a leading dot are ignored; unknown
// extensions are Other.
func (c *Classifier) Classify(ext string) core.AssetClass {
	if class, ok := c.classes[normalize(ext)]; ok {
		return class
	}

	return core.AssetClassOther
}

// ClassifyPath classifies a file by the extension of its name.
func (c *Classifier) ClassifyPath(path string) core.AssetClass {
	return c.Classify(filepath.Ext(path))
}

// Len returns the number of known extensions.
func (c *Classifier) Len() int {
	return len(c.classes)
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
