package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegTranscoder shells out to ffmpeg and ffprobe.
type FFmpegTranscoder struct {
	FFmpegBin  string
	FFprobeBin string
}

func NewFFmpegTranscoder(ffmpegBin, ffprobeBin string) *FFmpegTranscoder {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &FFmpegTranscoder{FFmpegBin: ffmpegBin, FFprobeBin: ffprobeBin}
}

// ExtractAudio decodes the first audio stream of inPath and writes it to
// outPath as 16 kHz mono PCM wav.
func (t *FFmpegTranscoder) ExtractAudio(ctx context.Context, inPath, outPath string) error {
	cmd := exec.CommandContext(ctx, t.FFmpegBin, extractAudioArgs(inPath, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

// Probe returns the container duration in seconds.
func (t *FFmpegTranscoder) Probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.FFprobeBin,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, lastLine(stderr.String()))
	}
	return parseProbeDuration(out)
}

func extractAudioArgs(inPath, outPath string) []string {
	return ffmpeg.Input(inPath).
		Output(outPath, ffmpeg.KwArgs{
			"vn":     "",
			"acodec": "pcm_s16le",
			"ar":     16000,
			"ac":     1,
		}).
		OverWriteOutput().
		GetArgs()
}

// parseProbeDuration reads format.duration, falling back to the first stream
// that reports one.
func parseProbeDuration(probe []byte) (float64, error) {
	if !gjson.ValidBytes(probe) {
		return 0, fmt.Errorf("ffprobe returned invalid json")
	}
	if duration := gjson.GetBytes(probe, "format.duration"); duration.Exists() && duration.Float() > 0 {
		return duration.Float(), nil
	}
	for _, duration := range gjson.GetBytes(probe, "streams.#.duration").Array() {
		if duration.Float() > 0 {
			return duration.Float(), nil
		}
	}
	return 0, fmt.Errorf("ffprobe reported no duration")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
