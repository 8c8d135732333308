package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/core"
)

func TestClassifier_Classify(t *testing.T) {
	c, err := New(DefaultLists)
	require.NoError(t, err)

	tests := []struct {
		ext  string
		want core.AssetClass
	}{
		{"jpg", core.AssetClassImage},
		{"JPG", core.AssetClassImage},
		{".jpg", core.AssetClassImage},
		{"mov", core.AssetClassVideo},
		{"MoV", core.AssetClassVideo},
		{"mp3", core.AssetClassAudio},
		{"xyz", core.AssetClassOther},
		{"", core.AssetClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			require.Equal(t, tt.want, c.Classify(tt.ext))
		})
	}
}

func TestClassifier_CaseInsensitive(t *testing.T) {
	c, err := New(DefaultLists)
	require.NoError(t, err)

	for _, lists := range [][]string{DefaultLists.Audio, DefaultLists.Image, DefaultLists.Video} {
		for _, ext := range lists {
			require.Equal(t, c.Classify(ext), c.Classify(ext))
			require.NotEqual(t, core.AssetClassOther, c.Classify(ext))
		}
	}
}

func TestClassifier_ClassifyPath(t *testing.T) {
	c, err := New(DefaultLists)
	require.NoError(t, err)

	require.Equal(t, core.AssetClassImage, c.ClassifyPath("/landing/a.JPG"))
	require.Equal(t, core.AssetClassVideo, c.ClassifyPath("clip.final.mp4"))
	require.Equal(t, core.AssetClassOther, c.ClassifyPath("README"))
}

func TestNew_ConflictingLists(t *testing.T) {
	_, err := New(Lists{
		Audio: []string{"mp4"},
		Video: []string{".MP4"},
	})
	require.Error(t, err)
}

func TestNew_CustomLists(t *testing.T) {
	c, err := New(Lists{Image: []string{" RAW "}})
	require.NoError(t, err)

	require.Equal(t, 1, c.Len())
	require.Equal(t, core.AssetClassImage, c.Classify("raw"))
	require.Equal(t, core.AssetClassOther, c.Classify("jpg"))
}
