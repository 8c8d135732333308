package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-mediaflow/stages"
)

const exifOutput = `[{
  "SourceFile": "photo.jpg",
  "Make": "Canon",
  "Model": "EOS 5D",
  "GPSLatitude": "+47.60620000",
  "GPSLongitude": "-122.33210000",
  "GPSAltitude": "56.2 m Above Sea Level",
  "DateTimeOriginal": "2024-02-29T10:00:00+0000",
  "ThumbnailImage": "(Binary data 1234 bytes)",
  "ImageWidth": 6000
}]`

const mediainfoFixture = `{"media": {"@ref": "clip.mov", "track": [
  {"@type": "General", "Format": "MPEG-4", "Duration": "12.5", "Encoded_Date": "UTC 2024-02-29 10:00:00",
   "extra": {"com_apple_quicktime_make": "Apple", "com_apple_quicktime_location_ISO6709": "+37.3318-122.0312+012.345/"}},
  {"@type": "Video", "Format": "AVC", "Width": "1920", "Height": "1080"},
  {"@type": "Video", "Format": "HEVC"},
  {"@type": "Audio", "Format": "AAC", "Channels": "2"}
]}}`

// fakeCommand replaces the commands run by the tools with this test binary, answering in the given
// helper mode. The arguments of every call are captured.
func fakeCommand(t *testing.T, mode string) *[][]string {
	t.Helper()

	var calls [][]string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, append([]string{name}, args...))
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "TOOLS_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	return &calls
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("TOOLS_HELPER_MODE") {
	case "exif":
		fmt.Print(exifOutput)
	case "mediainfo":
		fmt.Print(mediainfoFixture)
	case "failure":
		fmt.Fprintln(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	}

	os.Exit(0)
}

func Test_New_Defaults(t *testing.T) {
	tl := New(Options{Ffmpeg: " /opt/ffmpeg "})

	require.Equal(t, []string{"exiftool", "mediainfo", "/opt/ffmpeg"}, tl.Binaries())
}

func Test_Exif(t *testing.T) {
	calls := fakeCommand(t, "exif")

	tracks, err := New(Options{}).Exif(context.Background(), "/landing/a1/photo.jpg")
	require.NoError(t, err)

	require.Equal(t, [][]string{{
		"exiftool", "-j", "-d", "%Y-%m-%dT%H:%M:%S+0000", "-c", "%+.8f", "/landing/a1/photo.jpg",
	}}, *calls)

	general := tracks[stages.TrackGeneral]
	require.Equal(t, "Canon", general["make"])
	require.Equal(t, "EOS 5D", general["model"])
	require.Equal(t, "+47.60620000", general["Latitude"])
	require.Equal(t, "56.2", general["Altitude"])
	require.Equal(t, "2024-02-29T10:00:00+0000", general["recorded_date"])

	image := tracks[stages.TrackImage]
	require.NotContains(t, image, "ThumbnailImage")
	require.NotContains(t, image, "Make")
	require.Equal(t, float64(6000), image["ImageWidth"])
}

func Test_Mediainfo(t *testing.T) {
	calls := fakeCommand(t, "mediainfo")

	tracks, err := New(Options{Mediainfo: "/usr/local/bin/mediainfo"}).Mediainfo(context.Background(), "/landing/a2/clip.mov")
	require.NoError(t, err)

	require.Equal(t, [][]string{{"/usr/local/bin/mediainfo", "--Output=JSON", "/landing/a2/clip.mov"}}, *calls)

	general := tracks[stages.TrackGeneral]
	require.Equal(t, "MPEG-4", general["Format"])
	require.Equal(t, "Apple", general["make"])
	require.Equal(t, "+37.3318", general["Latitude"])
	require.Equal(t, "-122.0312", general["Longitude"])
	require.Equal(t, "+012.345", general["Altitude"])
	require.Equal(t, "2024-02-29T10:00:00+0000", general["Encoded_Date"])

	require.Equal(t, "AVC", tracks[stages.TrackVideo]["Format"])
	require.Equal(t, "AAC", tracks[stages.TrackAudio]["Format"])
}

func Test_MediaTools_Commands(t *testing.T) {
	tests := []struct {
		name string
		run  func(tl *Tools) ([]byte, error)
		want []string
	}{
		{
			name: "ImageThumbnail",
			run: func(tl *Tools) ([]byte, error) {
				return tl.ImageThumbnail(context.Background(), "in.jpg", "thumbnails/in_thumbnail.jpg")
			},
			want: []string{"ffmpeg", "-y", "-i", "in.jpg", "-vf", "scale=640:360:force_original_aspect_ratio=decrease", "-frames:v", "1", "-loglevel", "fatal", "thumbnails/in_thumbnail.jpg"},
		},
		{
			name: "VideoFrames",
			run: func(tl *Tools) ([]byte, error) {
				return tl.VideoFrames(context.Background(), "in.mov", "thumbnails/in_thumbnail_%d.jpg")
			},
			want: []string{"ffmpeg", "-y", "-i", "in.mov", "-vf", "fps=1,scale=iw/3:ih/3", "-loglevel", "fatal", "thumbnails/in_thumbnail_%d.jpg"},
		},
		{
			name: "TranscodeVideo",
			run: func(tl *Tools) ([]byte, error) {
				return tl.TranscodeVideo(context.Background(), "in.mov", "converted/in_PDL.mp4")
			},
			want: []string{"ffmpeg", "-y", "-i", "in.mov", "-c:v", "libx264", "-preset", "fast", "-crf", "22", "-c:a", "aac", "-loglevel", "fatal", "converted/in_PDL.mp4"},
		},
		{
			name: "TranscodeAudio",
			run: func(tl *Tools) ([]byte, error) {
				return tl.TranscodeAudio(context.Background(), "in.wav", "converted/in_PDL.mp3")
			},
			want: []string{"ffmpeg", "-y", "-i", "in.wav", "-vn", "-c:a", "libmp3lame", "-q:a", "2", "-loglevel", "fatal", "converted/in_PDL.mp3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := fakeCommand(t, "success")

			_, err := tt.run(New(Options{}))
			require.NoError(t, err)
			require.Equal(t, [][]string{tt.want}, *calls)
		})
	}
}

func Test_Run_Failure(t *testing.T) {
	fakeCommand(t, "failure")

	_, err := New(Options{}).TranscodeVideo(context.Background(), "in.mov", "out.mp4")
	require.ErrorContains(t, err, "ffmpeg")
	require.ErrorContains(t, err, "Invalid data found when processing input")
}

func Test_Run_NoPath(t *testing.T) {
	calls := fakeCommand(t, "success")

	_, err := New(Options{}).Exif(context.Background(), "")
	require.Error(t, err)
	require.Empty(t, *calls)
}

func Test_ParseDate(t *testing.T) {
	require.Equal(t, "2024-02-29T10:00:00+0000", parseDate("2024-02-29 10:00:00 UTC"))
	require.Equal(t, "2024-02-29T10:00:00+0000", parseDate("2024-02-29T12:00:00+02:00"))
	require.Equal(t, "yesterday", parseDate("yesterday"))
}
