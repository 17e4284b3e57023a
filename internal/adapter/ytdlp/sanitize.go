package ytdlp

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxTitleLen = 80

var (
	unsafeChars     = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
	underscoreRuns  = regexp.MustCompile(`_{2,}`)
	edgeUnderscores = regexp.MustCompile(`^_+|_+$`)
)

// SanitizeFilename makes a name safe across filesystems: spaces become
// underscores, anything outside [a-zA-Z0-9._-] is replaced, runs collapse,
// and edges are trimmed. An empty result falls back to a timestamped name.
func SanitizeFilename(name string) string {
	s := strings.ReplaceAll(name, " ", "_")
	s = unsafeChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = edgeUnderscores.ReplaceAllString(s, "")
	if s == "" {
		s = fmt.Sprintf("downloaded_file_%d", time.Now().Unix())
	}
	return s
}

// outputBase builds the extension-less output name for a job: the sanitized,
// length-capped title plus the short job ID, which keeps concurrent jobs
// with identical titles from colliding.
func outputBase(title, shortID string) string {
	if title == "" {
		return "video_" + shortID
	}
	s := SanitizeFilename(title)
	if len(s) > maxTitleLen {
		s = strings.Trim(s[:maxTitleLen], "_")
	}
	if s == "" {
		return "video_" + shortID
	}
	return s + "_" + shortID
}
