package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/spotenv/internal/models"
	"github.com/desertthunder/spotenv/internal/platform"
	"github.com/desertthunder/spotenv/internal/services"
	"github.com/desertthunder/spotenv/internal/shared"
	tu "github.com/desertthunder/spotenv/internal/testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{name: "python 3", output: "Python 3.11.4\n", want: "3.11.4"},
		{name: "two components", output: "Python 3.12", want: "3.12.0"},
		{name: "leading noise", output: "\nPython 2.7.18", want: "2.7.18"},
		{name: "no version", output: "command not found", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := services.ParseVersion(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", v)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, v)
			}
		})
	}
}

func TestFindInterpreter(t *testing.T) {
	ctx := context.Background()

	t.Run("first candidate satisfying constraint", func(t *testing.T) {
		host := tu.NewPythonHost(platform.Posix{})
		exec := host.Executor()

		interp, err := services.FindInterpreter(ctx, exec, platform.Posix{}.Interpreters(), ">= 3.8")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if interp.Path != "/usr/bin/python3" {
			t.Errorf("expected /usr/bin/python3, got %s", interp.Path)
		}
		if interp.Version.String() != "3.12.1" {
			t.Errorf("expected 3.12.1, got %s", interp.Version)
		}
	})

	t.Run("fixed arguments are kept", func(t *testing.T) {
		host := tu.NewPythonHost(platform.Windows{})
		exec := host.Executor()

		interp, err := services.FindInterpreter(ctx, exec, platform.Windows{}.Interpreters(), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cmd := interp.Args("-m", "venv", "env")
		if got := strings.Join(cmd.Args, " "); got != "-3 -m venv env" {
			t.Errorf("unexpected args %q", got)
		}
	})

	t.Run("skips missing candidates", func(t *testing.T) {
		host := tu.NewPythonHost(platform.Posix{})
		exec := host.Executor()
		delete(exec.Paths, "python3")

		interp, err := services.FindInterpreter(ctx, exec, platform.Posix{}.Interpreters(), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if interp.Path != "/usr/bin/python" {
			t.Errorf("expected fallback to python, got %s", interp.Path)
		}
	})

	t.Run("none on PATH", func(t *testing.T) {
		exec := &tu.FakeExecutor{}
		_, err := services.FindInterpreter(ctx, exec, platform.Posix{}.Interpreters(), "")
		if !errors.Is(err, shared.ErrInterpreterNotFound) {
			t.Errorf("expected ErrInterpreterNotFound, got %v", err)
		}
	})

	t.Run("too old", func(t *testing.T) {
		host := tu.NewPythonHost(platform.Posix{})
		host.Version = "Python 3.6.9"

		_, err := services.FindInterpreter(ctx, host.Executor(), platform.Posix{}.Interpreters(), ">= 3.8")
		if !errors.Is(err, shared.ErrInterpreterVersion) {
			t.Errorf("expected ErrInterpreterVersion, got %v", err)
		}
	})

	t.Run("bad constraint", func(t *testing.T) {
		host := tu.NewPythonHost(platform.Posix{})
		_, err := services.FindInterpreter(ctx, host.Executor(), platform.Posix{}.Interpreters(), "not a constraint")
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestToolVersion(t *testing.T) {
	ctx := context.Background()
	host := tu.NewPythonHost(platform.Posix{})
	host.Tools["spotdl"] = "4.2.5\nextra"
	exec := host.Executor()

	t.Run("first line", func(t *testing.T) {
		v, err := services.ToolVersion(ctx, exec, "/env/bin/spotdl", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "4.2.5" {
			t.Errorf("expected 4.2.5, got %q", v)
		}
	})

	t.Run("missing tool", func(t *testing.T) {
		_, err := services.ToolVersion(ctx, exec, "/env/bin/yt-dlp", nil)
		if !errors.Is(err, shared.ErrToolNotInstalled) {
			t.Errorf("expected ErrToolNotInstalled, got %v", err)
		}
	})
}

func TestPipInstaller(t *testing.T) {
	ctx := context.Background()
	host := tu.NewPythonHost(platform.Posix{})
	host.Broken["no-such-package"] = true
	exec := host.Executor()
	pip := services.NewPipInstaller(exec)

	if err := pip.Install(ctx, "/env/bin/python", nil, models.Dependency{Name: "requests", Version: "2.31.0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := pip.Install(ctx, "/env/bin/python", nil, models.Dependency{Name: "Yt_Dlp"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := exec.CallsWith("install")
	if len(calls) != 2 {
		t.Fatalf("expected 2 install calls, got %d", len(calls))
	}
	if last := calls[0].Args[len(calls[0].Args)-1]; last != "requests==2.31.0" {
		t.Errorf("expected pinned spec, got %q", last)
	}

	err := pip.Install(ctx, "/env/bin/python", nil, models.Dependency{Name: "no-such-package"})
	if !errors.Is(err, shared.ErrCommandFailed) {
		t.Errorf("expected ErrCommandFailed, got %v", err)
	}

	installed, err := pip.Installed(ctx, "/env/bin/python", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if installed["requests"] != "2.31.0" {
		t.Errorf("expected requests 2.31.0, got %q", installed["requests"])
	}
	if _, ok := installed["yt-dlp"]; !ok {
		t.Errorf("expected normalised yt-dlp in %v", installed)
	}

	t.Run("garbage output", func(t *testing.T) {
		exec := &tu.FakeExecutor{Handler: func(context.Context, services.Command) (*services.Result, error) {
			return &services.Result{Stdout: "not json"}, nil
		}}
		if _, err := services.NewPipInstaller(exec).Installed(ctx, "python", nil); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    services.Format
		wantErr bool
	}{
		{in: "mp3", want: services.FormatMP3},
		{in: " FLAC ", want: services.FormatFLAC},
		{in: "ogg", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := services.ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidFormat) {
					t.Errorf("expected ErrInvalidFormat, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestParseIdentifier(t *testing.T) {
	const id = "4uLU6hMCjMI75M1A2tKUQC"

	tests := []struct {
		name     string
		in       string
		wantKind string
		wantErr  bool
	}{
		{name: "track url", in: "https://open.spotify.com/track/" + id, wantKind: "track"},
		{name: "url with query", in: "https://open.spotify.com/album/" + id + "?si=abc", wantKind: "album"},
		{name: "intl url", in: "https://open.spotify.com/intl-de/playlist/" + id, wantKind: "playlist"},
		{name: "uri", in: "spotify:track:" + id, wantKind: "track"},
		{name: "artist kind", in: "spotify:artist:" + id, wantErr: true},
		{name: "short id", in: "spotify:track:abc", wantErr: true},
		{name: "other host", in: "https://youtube.com/track/" + id, wantErr: true},
		{name: "bare id", in: id, wantErr: true},
		{name: "extra path", in: "https://open.spotify.com/track/" + id + "/more", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := services.ParseIdentifier(tt.in)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidIdentifier) {
					t.Errorf("expected ErrInvalidIdentifier, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.wantKind || got.ID != id {
				t.Errorf("unexpected identifier %+v", got)
			}
		})
	}

	got, _ := services.ParseIdentifier("spotify:album:" + id)
	if got.URL() != "https://open.spotify.com/album/"+id {
		t.Errorf("unexpected url %s", got.URL())
	}
}

func TestDownloader(t *testing.T) {
	ctx := context.Background()
	ids := []services.Identifier{
		{Kind: "track", ID: "4uLU6hMCjMI75M1A2tKUQC"},
		{Kind: "album", ID: "1DFixLWuPkv3KT3TnV35m3"},
		{Kind: "playlist", ID: "37i9dQZF1DXcBWIGoYBM5M"},
	}

	t.Run("continues after a failure", func(t *testing.T) {
		exec := &tu.FakeExecutor{Handler: func(_ context.Context, cmd services.Command) (*services.Result, error) {
			if strings.Contains(cmd.Args[1], "album") {
				return tu.Failure(cmd.Name, 1, "lookup error")
			}
			return &services.Result{}, nil
		}}

		d := services.NewDownloader(exec, 0, shared.NewLogger(nil))
		results, err := d.Download(ctx, services.DownloadRequest{
			Tool:        "/env/bin/spotdl",
			Identifiers: ids,
			Format:      services.FormatFLAC,
			OutputDir:   "out",
		})
		if !errors.Is(err, shared.ErrDownloadFailed) {
			t.Fatalf("expected ErrDownloadFailed, got %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if results[0].Err != nil || results[1].Err == nil || results[2].Err != nil {
			t.Errorf("unexpected per-item errors: %+v", results)
		}

		calls := exec.Calls()
		if len(calls) != 3 {
			t.Fatalf("expected 3 invocations, got %d", len(calls))
		}
		want := "/env/bin/spotdl download https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC --format flac --output out"
		if calls[0].String() != want {
			t.Errorf("expected %q, got %q", want, calls[0].String())
		}
	})

	t.Run("invalid format spawns nothing", func(t *testing.T) {
		exec := &tu.FakeExecutor{}
		d := services.NewDownloader(exec, 0, nil)
		_, err := d.Download(ctx, services.DownloadRequest{Tool: "spotdl", Identifiers: ids, Format: "wav"})
		if !errors.Is(err, shared.ErrInvalidFormat) {
			t.Errorf("expected ErrInvalidFormat, got %v", err)
		}
		if len(exec.Calls()) != 0 {
			t.Errorf("expected no invocations, got %d", len(exec.Calls()))
		}
	})

	t.Run("no identifiers", func(t *testing.T) {
		d := services.NewDownloader(&tu.FakeExecutor{}, 0, nil)
		_, err := d.Download(ctx, services.DownloadRequest{Tool: "spotdl", Format: services.FormatMP3})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		d := services.NewDownloader(&tu.FakeExecutor{}, 0, nil)
		_, err := d.Download(cctx, services.DownloadRequest{Tool: "spotdl", Identifiers: ids, Format: services.FormatMP3})
		if err == nil {
			t.Error("expected error for cancelled context")
		}
	})
}
