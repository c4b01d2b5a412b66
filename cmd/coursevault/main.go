// Command coursevault runs a download batch for one course: every
// unlocked lesson with a resolved stream URL is fetched, merged and
// recorded in the course's sync database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coursevault/coursevault/internal/config"
	"github.com/coursevault/coursevault/internal/dispatch"
	"github.com/coursevault/coursevault/internal/domain"
	"github.com/coursevault/coursevault/internal/downloader"
	"github.com/coursevault/coursevault/internal/service"
	"github.com/coursevault/coursevault/internal/store"
	"github.com/coursevault/coursevault/pkg/credstore"
	"github.com/coursevault/coursevault/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	course := flag.String("course", "", "Course slug to download")
	provider := flag.String("provider", "", "Credentials entry to use for authenticated fetches")
	quality := flag.String("quality", "best", "Variant selection hint, e.g. 720p or best")
	resetErrors := flag.Bool("reset-errors", false, "Reset errored lessons to pending before downloading")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coursevault %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}
	if *course == "" {
		fmt.Fprintln(os.Stderr, "usage: coursevault -course <slug> [-config path]")
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *course, *provider, *quality, *resetErrors); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, course, provider, quality string, resetErrors bool) error {
	if ffmpeg.IsAvailable() {
		if v, err := ffmpeg.Version(); err == nil {
			logger.Info("ffmpeg detected", "version", v)
		}
	} else {
		logger.Warn("ffmpeg not found in PATH, segmented downloads will fail")
	}

	st, err := store.Open(cfg.Storage.StateDir, course, logger)
	if err != nil {
		return fmt.Errorf("open course state: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if resetErrors {
		n, err := st.ResetErrors(ctx)
		if err != nil {
			return fmt.Errorf("reset errors: %w", err)
		}
		logger.Info("errored lessons reset", "count", n)
	}

	creds, err := loadCredentials(cfg.Storage.CredentialsPath, provider, logger)
	if err != nil {
		return err
	}

	lessons, err := st.ReadyToDownload(ctx)
	if err != nil {
		return fmt.Errorf("list lessons: %w", err)
	}
	if len(lessons) == 0 {
		logger.Info("nothing to download", "course", course)
		return nil
	}

	tasks := buildTasks(cfg, course, quality, creds, lessons)

	license := downloader.NewLicenseClient(cfg.License, cfg.Download.UserAgent)
	segmented := downloader.NewHLSDownloader(cfg.Download, license, logger)
	progressive := downloader.NewFileDownloader(cfg.Download, logger)
	engine := service.NewEngine(
		dispatch.New(segmented, progressive),
		st,
		cfg.Storage,
		cfg.Worker,
		logger,
	)

	stats, err := engine.Run(ctx, tasks)
	if err != nil {
		return err
	}
	if err := st.SetLastSync(ctx, time.Now()); err != nil {
		logger.Warn("record sync time", "error", err)
	}

	logger.Info("download run complete",
		"course", course,
		"completed", stats.Completed,
		"failed", stats.Failed,
	)
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d lessons failed", stats.Failed, len(tasks))
	}
	return nil
}

func loadCredentials(path, provider string, logger *slog.Logger) (credstore.Credentials, error) {
	if path == "" || provider == "" {
		return credstore.Credentials{}, nil
	}

	password := os.Getenv("COURSEVAULT_CREDENTIALS_KEY")
	if password == "" {
		return credstore.Credentials{}, fmt.Errorf("COURSEVAULT_CREDENTIALS_KEY is required to read %s", path)
	}

	f, err := credstore.Load(path, password)
	if err != nil {
		return credstore.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	creds, err := f.Get(provider)
	if err != nil {
		return credstore.Credentials{}, err
	}
	logger.Debug("credentials loaded", "provider", provider)
	return creds, nil
}

func buildTasks(cfg *config.Config, course, quality string, creds credstore.Credentials, lessons []*domain.Lesson) []domain.DownloadTask {
	courseDir := filepath.Join(cfg.Storage.OutputDir, store.SanitizeSlug(course))

	tasks := make([]domain.DownloadTask, 0, len(lessons))
	for _, l := range lessons {
		if l.VideoURL == "" {
			continue
		}
		tasks = append(tasks, domain.DownloadTask{
			LessonID:   l.ID,
			LessonName: l.Name,
			SourceURL:  l.VideoURL,
			Protocol:   l.Protocol,
			OutputPath: filepath.Join(courseDir, fmt.Sprintf("%03d-%s.mp4", l.Position, l.Slug)),
			Quality:    quality,
			Cookies:    creds.Cookies,
			Referer:    creds.Referer,
			AuthToken:  creds.AuthToken,
		})
	}
	return tasks
}
