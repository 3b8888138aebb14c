package main

import (
	"github.com/urfave/cli/v3"
)

func pathFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "path",
		Usage: "Environment directory (default: environment.path from config)",
	}
}

func platformFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "platform",
		Usage:   "Target platform: posix-shell or windows-shell (default: detected)",
		Sources: cli.EnvVars("SPOTENV_PLATFORM"),
	}
}

func manifestFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "manifest",
		Aliases: []string{"m"},
		Usage:   "Requirements-style manifest file (default: manifest from config)",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// bootstrapCommand creates the environment, activates it and installs the manifest.
func bootstrapCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "bootstrap",
		Aliases: []string{"setup"},
		Usage:   "Create the isolated environment and install the downloader stack",
		Flags: []cli.Flag{
			pathFlag(),
			platformFlag(),
			manifestFlag(),
			&cli.StringFlag{
				Name:  "python",
				Usage: "Interpreter used to create the environment",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show interactive progress",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt in TUI mode",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a bootstrap report to this file",
			},
			&cli.StringFlag{
				Name:  "report-format",
				Usage: "Report format: text, markdown, csv or json (default: from file extension)",
			},
		},
		Action: r.Bootstrap,
	}
}

func verifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "verify",
		Usage:  "Check every manifest entry is installed in the environment",
		Flags:  []cli.Flag{pathFlag(), platformFlag(), manifestFlag(), jsonFlag()},
		Action: r.Verify,
	}
}

func doctorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "doctor",
		Usage:  "Check the interpreter, environment, tools and ledger",
		Flags:  []cli.Flag{pathFlag(), platformFlag()},
		Action: r.Doctor,
	}
}

func manifestCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "manifest",
		Usage:  "Print the resolved dependency manifest",
		Flags:  []cli.Flag{manifestFlag(), jsonFlag()},
		Action: r.Manifest,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded bootstrap runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to show (0 for all)",
				Value: 10,
			},
			jsonFlag(),
		},
		Action: r.History,
	}
}

// downloadCommand runs the wrapped downloader from the environment.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download Spotify tracks, albums or playlists with spotdl",
		ArgsUsage: "<url|uri>...",
		Flags: []cli.Flag{
			pathFlag(),
			platformFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Audio format: mp3 or flac (default: download.format from config)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: download.output_dir from config)",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Read identifiers from a file, one per line (blank lines and # comments are skipped)",
			},
		},
		Action: r.Download,
	}
}

func provisionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "provision",
		Usage: "Install standalone yt-dlp, ffmpeg and ffprobe binaries",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "ytdlp",
				Usage: "Provision yt-dlp (default: tools.ytdlp from config)",
			},
			&cli.BoolFlag{
				Name:  "ffmpeg",
				Usage: "Provision ffmpeg (default: tools.ffmpeg from config)",
			},
			&cli.BoolFlag{
				Name:  "ffprobe",
				Usage: "Provision ffprobe (default: tools.ffprobe from config)",
			},
			jsonFlag(),
		},
		Action: r.Provision,
	}
}

func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the example configuration to --config",
				Action: r.ConfigInit,
			},
		},
	}
}

// dbCommand manages the install ledger schema.
func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Install ledger commands",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending migrations",
				Action: r.DBMigrate,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the most recent migration",
				Action: r.DBRollback,
			},
			{
				Name:   "status",
				Usage:  "Print the current schema version",
				Action: r.DBStatus,
			},
		},
	}
}
