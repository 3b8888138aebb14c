package services

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotenv/internal/shared"
	"github.com/lrstanley/go-ytdlp"
)

// Binary installers, swapped in tests.
var (
	installYtDlp = func(ctx context.Context) (*ytdlp.ResolvedInstall, error) {
		return ytdlp.Install(ctx, nil)
	}
	installFFmpeg = func(ctx context.Context) (*ytdlp.ResolvedInstall, error) {
		return ytdlp.InstallFFmpeg(ctx, nil)
	}
	installFFprobe = func(ctx context.Context) (*ytdlp.ResolvedInstall, error) {
		return ytdlp.InstallFFprobe(ctx, nil)
	}
)

// Provisioned describes one standalone binary made available on the host.
type Provisioned struct {
	Name       string `json:"name"`
	Executable string `json:"executable"`
	Version    string `json:"version,omitempty"`
	FromCache  bool   `json:"from_cache"`
}

// Provision installs the standalone binaries enabled in opts. Binaries already
// present in the go-ytdlp cache are reused.
func Provision(ctx context.Context, opts shared.ToolsConfig, logger *log.Logger) ([]Provisioned, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	steps := []struct {
		name    string
		enabled bool
		install func(context.Context) (*ytdlp.ResolvedInstall, error)
	}{
		{"yt-dlp", opts.YtDlp, installYtDlp},
		{"ffmpeg", opts.FFmpeg, installFFmpeg},
		{"ffprobe", opts.FFprobe, installFFprobe},
	}

	var out []Provisioned
	for _, step := range steps {
		if !step.enabled {
			continue
		}

		logger.Info("provisioning", "tool", step.name)
		resolved, err := step.install(ctx)
		if err != nil {
			return out, fmt.Errorf("failed to provision %s: %w", step.name, err)
		}

		p := Provisioned{
			Name:       step.name,
			Executable: resolved.Executable,
			Version:    resolved.Version,
			FromCache:  resolved.FromCache,
		}
		logger.Info("provisioned", "tool", p.Name, "path", p.Executable, "cached", p.FromCache)
		out = append(out, p)
	}
	return out, nil
}
