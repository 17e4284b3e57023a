package ytdlp

import (
	"regexp"
	"strconv"

	"github.com/elteam/everyload/internal/domain"
)

// progressLine matches yt-dlp download progress output, e.g.
// "[download]  42.3% of 10.00MiB at 1.20MiB/s ETA 00:12".
var progressLine = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%.*?(?:ETA\s+(\d+):(\d{2})(?::(\d{2}))?)?\s*$`)

// parseProgress extracts a progress tick from one line of yt-dlp output.
func parseProgress(line string) (domain.Progress, bool) {
	m := progressLine.FindStringSubmatch(line)
	if m == nil {
		return domain.Progress{}, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return domain.Progress{}, false
	}

	eta := -1
	if m[2] != "" {
		a, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		if m[4] != "" {
			c, _ := strconv.Atoi(m[4])
			eta = a*3600 + b*60 + c
		} else {
			eta = a*60 + b
		}
	}

	return domain.Progress{Percent: percent, ETASeconds: eta}, true
}
