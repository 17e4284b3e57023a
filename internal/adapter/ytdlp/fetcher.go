package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/elteam/everyload/internal/domain"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var youtubeHost = regexp.MustCompile(`^https?://(www\.)?(youtube\.com|youtu\.be)/`)

// Fetcher downloads media with the yt-dlp executable. Jobs go straight from
// downloading to downloaded; there is no remote-terminal intermediate step.
type Fetcher struct {
	binary string
	dir    string
	log    *logrus.Logger
}

// New creates a fetcher writing into dir.
func New(dir string, log *logrus.Logger) *Fetcher {
	return &Fetcher{binary: "yt-dlp", dir: dir, log: log}
}

// Probe extracts the media title without downloading.
func (f *Fetcher) Probe(ctx context.Context, url string) (string, error) {
	cmd := exec.CommandContext(ctx, f.binary,
		"--no-playlist",
		"--print", "%(title)s",
		"--skip-download",
		"--user-agent", userAgent,
		"--no-check-certificates",
		url,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("title probe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Fetch runs one download, streaming progress ticks parsed from yt-dlp
// output. The returned files are resolved by the job's output name, falling
// back to a short-ID substring match.
func (f *Fetcher) Fetch(ctx context.Context, req domain.FetchRequest, progress func(domain.Progress)) (*domain.FetchResult, error) {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return nil, domain.NewFetchError(domain.CategoryStorage, fmt.Sprintf("cannot create download directory: %v", err))
	}

	shortID := lastN(req.JobID, 8)
	base := outputBase(req.Title, shortID)
	template := filepath.Join(f.dir, base+".%(ext)s")

	args := f.buildArgs(req, template)

	cmd := exec.CommandContext(ctx, f.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout // yt-dlp splits progress across both

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", f.binary, err)
	}

	var tail []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if p, ok := parseProgress(line); ok {
			progress(p)
			continue
		}
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s failed: %w: %s", f.binary, err, strings.Join(tail, "\n"))
	}

	files, err := f.findOutputs(base, shortID)
	if err != nil {
		return nil, domain.NewFetchError(domain.CategoryStorage, err.Error())
	}
	if len(files) == 0 {
		return nil, domain.NewFetchError(domain.CategoryUnknown, "download produced no files")
	}

	return &domain.FetchResult{
		Files:    files,
		LocalURI: "file://" + filepath.Join(f.dir, files[0]),
	}, nil
}

func (f *Fetcher) buildArgs(req domain.FetchRequest, template string) []string {
	args := []string{
		"-o", template,
		"--newline",
		"--user-agent", userAgent,
		"--no-check-certificates",
		"--extractor-retries", "3",
		"--fragment-retries", "3",
		"--skip-unavailable-fragments",
	}
	if !req.Options.AllowPlaylists {
		args = append(args, "--no-playlist")
	}

	// Format selection only for YouTube URLs; for other sites yt-dlp's own
	// default selection behaves better.
	if youtubeHost.MatchString(req.URL) {
		if format := formatSelector(req.Options); format != "" {
			args = append(args, "--format", format)
		}
	}

	return append(args, req.URL)
}

func formatSelector(opts domain.FetchOptions) string {
	switch opts.Format {
	case "audio":
		return "bestaudio[ext=mp3]/bestaudio[ext=m4a]/bestaudio/best"
	case "mp4":
		if opts.Quality == "" || opts.Quality == "best" {
			return "best[ext=mp4]/best[vcodec!=none][acodec!=none]/best"
		}
		h := strings.TrimSuffix(opts.Quality, "p")
		return fmt.Sprintf("best[height<=%s][ext=mp4]/best[height<=%s][vcodec!=none][acodec!=none]/best[height<=%s]/best", h, h, h)
	default:
		if opts.Quality == "" || opts.Quality == "best" {
			return "best[vcodec!=none][acodec!=none]/best"
		}
		h := strings.TrimSuffix(opts.Quality, "p")
		return fmt.Sprintf("best[height<=%s][vcodec!=none][acodec!=none]/best[height<=%s]/best", h, h)
	}
}

// findOutputs resolves the produced files: exact output-name match first,
// then any file carrying the short job ID.
func (f *Fetcher) findOutputs(base, shortID string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read download directory: %v", err)
	}

	var exact, byID []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if strings.EqualFold(stem, base) {
			exact = append(exact, name)
		} else if strings.Contains(name, shortID) {
			byID = append(byID, name)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return byID, nil
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
