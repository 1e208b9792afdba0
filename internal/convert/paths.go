package convert

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for inputs outside the accepted
// video extension set.
var ErrUnsupportedFormat = errors.New("unsupported video format")

// ErrOutputCollides is returned when the derived MP3 path would
// overwrite the source video itself.
var ErrOutputCollides = errors.New("output path would overwrite the source video")

// supportedExtensions is the accepted input set, lower-cased with dot.
var supportedExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
	".flv":  {},
}

// SupportedExtensions lists accepted input extensions without the dot,
// sorted for stable display in dialogs and error messages.
func SupportedExtensions() []string {
	return []string{"avi", "flv", "mkv", "mov", "mp4", "webm"}
}

// IsSupportedSource reports whether the path carries an accepted
// video extension.
func IsSupportedSource(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// OutputPathFor derives the MP3 output path beside the source file:
// same directory, same stem, .mp3 extension. A source like
// "clip.mp3.mp4" yields "clip.mp3.mp3", never "clip.mp3". When the
// derived path equals the source the caller must not proceed; that
// would overwrite the input.
func OutputPathFor(sourcePath string) (string, error) {
	ext := filepath.Ext(sourcePath)
	stem := strings.TrimSuffix(sourcePath, ext)
	if stem == "" {
		return "", fmt.Errorf("derive output path for %q: empty stem", sourcePath)
	}

	outputPath := stem + ".mp3"
	if outputPath == sourcePath {
		return "", ErrOutputCollides
	}
	return outputPath, nil
}
