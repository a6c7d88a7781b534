// Package media turns uploaded audio and video into audio a transcription
// service accepts.
package media

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Category groups extensions by how they are normalized.
type Category string

const (
	// CategoryVideo containers have their audio track extracted to wav.
	CategoryVideo Category = "video"
	// CategoryNativeAudio formats are accepted by the transcription service as is.
	CategoryNativeAudio Category = "native_audio"
	// CategoryOtherAudio formats are re-encoded to wav.
	CategoryOtherAudio Category = "other_audio"
)

var (
	videoExtensions       = map[string]struct{}{".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {}}
	nativeAudioExtensions = map[string]struct{}{".mp3": {}, ".wav": {}, ".flac": {}, ".m4a": {}, ".ogg": {}}
)

// Classify infers the normalization category from the file extension.
func Classify(filename string) Category {
	ext := Extension(filename)
	if _, ok := videoExtensions[ext]; ok {
		return CategoryVideo
	}
	if _, ok := nativeAudioExtensions[ext]; ok {
		return CategoryNativeAudio
	}
	return CategoryOtherAudio
}

// Extension returns the lower-cased extension including the dot.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsMedia reports whether the sniffed type, or one of its parents, is an
// audio or video payload.
func IsMedia(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		name := m.String()
		if strings.HasPrefix(name, "audio/") || strings.HasPrefix(name, "video/") || m.Is("application/ogg") {
			return true
		}
	}
	return false
}
