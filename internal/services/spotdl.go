package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotenv/internal/shared"
	"golang.org/x/time/rate"
)

// Format is the audio format requested from the wrapped downloader.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
)

// ParseFormat validates an output format flag.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMP3, FormatFLAC:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (expected mp3 or flac)", shared.ErrInvalidFormat, s)
	}
}

var spotifyID = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)

// Identifier is a Spotify track, album or playlist reference.
type Identifier struct {
	Kind string // track, album or playlist
	ID   string
}

// URL returns the canonical open.spotify.com URL.
func (i Identifier) URL() string {
	return fmt.Sprintf("https://open.spotify.com/%s/%s", i.Kind, i.ID)
}

func (i Identifier) String() string { return "spotify:" + i.Kind + ":" + i.ID }

// ParseIdentifier accepts open.spotify.com URLs (optionally with an intl-xx path segment)
// and spotify:{kind}:{id} URIs.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.TrimSpace(s)

	var kind, id string
	if rest, ok := strings.CutPrefix(s, "spotify:"); ok {
		kind, id, _ = strings.Cut(rest, ":")
	} else {
		u, err := url.Parse(s)
		if err != nil || u.Host != "open.spotify.com" {
			return Identifier{}, fmt.Errorf("%w: %q", shared.ErrInvalidIdentifier, s)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
			parts = parts[1:]
		}
		if len(parts) != 2 {
			return Identifier{}, fmt.Errorf("%w: %q", shared.ErrInvalidIdentifier, s)
		}
		kind, id = parts[0], parts[1]
	}

	switch kind {
	case "track", "album", "playlist":
	default:
		return Identifier{}, fmt.Errorf("%w: unsupported kind %q in %q", shared.ErrInvalidIdentifier, kind, s)
	}
	if !spotifyID.MatchString(id) {
		return Identifier{}, fmt.Errorf("%w: malformed id in %q", shared.ErrInvalidIdentifier, s)
	}

	return Identifier{Kind: kind, ID: id}, nil
}

// DownloadRequest describes one `spotenv download` invocation.
type DownloadRequest struct {
	Tool        string // path to the downloader inside the environment
	Env         []string
	Identifiers []Identifier
	Format      Format
	OutputDir   string
}

// DownloadResult is the outcome for a single identifier.
type DownloadResult struct {
	Identifier Identifier
	Err        error
}

// Downloader runs the wrapped downloader once per identifier.
type Downloader struct {
	exec    Executor
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewDownloader creates a [Downloader]. A zero interval disables pacing.
func NewDownloader(exec Executor, interval time.Duration, logger *log.Logger) *Downloader {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Downloader{exec: exec, limiter: rate.NewLimiter(limit, 1), logger: logger}
}

// Download processes every identifier in order. A failed item is recorded and the next one is tried;
// the returned error wraps [shared.ErrDownloadFailed] when any item failed.
func (d *Downloader) Download(ctx context.Context, req DownloadRequest) ([]DownloadResult, error) {
	if _, err := ParseFormat(string(req.Format)); err != nil {
		return nil, err
	}
	if len(req.Identifiers) == 0 {
		return nil, fmt.Errorf("%w: no identifiers", shared.ErrMissingArgument)
	}

	results := make([]DownloadResult, 0, len(req.Identifiers))
	failed := 0

	for _, id := range req.Identifiers {
		if err := d.limiter.Wait(ctx); err != nil {
			return results, err
		}

		d.logger.Info("downloading", "id", id.String(), "format", req.Format)
		_, err := d.exec.Run(ctx, Command{
			Name: req.Tool,
			Args: []string{"download", id.URL(), "--format", string(req.Format), "--output", req.OutputDir},
			Env:  req.Env,
		})
		if err != nil {
			failed++
			d.logger.Error("download failed", "id", id.String(), "error", err)
		}
		results = append(results, DownloadResult{Identifier: id, Err: err})
	}

	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d items", shared.ErrDownloadFailed, failed, len(results))
	}
	return results, nil
}
