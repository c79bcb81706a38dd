package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/tutor360/tutorvoice/internal/ai/gemini"
	"github.com/tutor360/tutorvoice/internal/api"
	"github.com/tutor360/tutorvoice/internal/audio"
	"github.com/tutor360/tutorvoice/internal/config"
	"github.com/tutor360/tutorvoice/internal/feedback"
	"github.com/tutor360/tutorvoice/internal/playback"
	"github.com/tutor360/tutorvoice/internal/prompt"
	"github.com/tutor360/tutorvoice/internal/storage/sqlite"
	"github.com/tutor360/tutorvoice/internal/voicechat"
	"github.com/tutor360/tutorvoice/internal/websocket"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// Version is the application version
const Version = "0.3.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Tutor Voice server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Open storage
	dbPath := filepath.Join(cfg.Storage.SQLiteBasePath, cfg.Storage.DatabaseFile)
	db, err := sqlite.Open(dbPath, log)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	turnStorage, err := sqlite.NewTurnStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize turn storage", logger.Error(err))
		os.Exit(1)
	}

	var usageStorage voicechat.UsageStore
	if cfg.Usage.Enabled {
		store, err := sqlite.NewUsageStorage(db, cfg.Usage.DailyMinutes*60, log)
		if err != nil {
			log.Error("Failed to initialize usage storage", logger.Error(err))
			os.Exit(1)
		}
		usageStorage = store
	}

	// Create WebSocket server for transcript observers
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Create Gemini client (realtime channel + feedback completions)
	geminiClient := gemini.NewClient(cfg.Gemini.APIKey, log)

	var corrector voicechat.Corrector
	if cfg.Feedback.Enabled {
		corrector = feedback.NewGenerator(geminiClient, feedback.Config{
			Model:       cfg.Gemini.ChatModel,
			Temperature: cfg.Gemini.Temperature,
			MaxTokens:   cfg.Gemini.MaxTokens,
			MaxRetries:  cfg.Feedback.MaxRetries,
		}, log)
	}

	// Per-session audio devices: microphone capture in, speaker out
	devices := func() (voicechat.CaptureSource, voicechat.Player, func(), error) {
		capture := audio.NewMicCapture(audio.CaptureConfig{
			FFmpegPath:  cfg.Audio.FFmpegPath,
			InputFormat: cfg.Audio.InputFormat,
			Device:      cfg.Audio.InputDevice,
			SampleRate:  audio.CaptureSampleRate,
			Channels:    audio.Channels,
		}, log)

		speaker := playback.NewSpeaker(playback.SpeakerConfig{
			FFplayPath: cfg.Audio.FFplayPath,
			SampleRate: audio.PlaybackSampleRate,
			Channels:   audio.Channels,
			Volume:     cfg.Audio.Volume,
		}, log)
		if err := speaker.Start(); err != nil {
			return nil, nil, nil, err
		}

		scheduler := playback.NewScheduler(playback.NewTimerClock(speaker), log)
		cleanup := func() { _ = speaker.Close() }
		return capture, scheduler, cleanup, nil
	}

	// Create voice chat service
	chatService := voicechat.NewService(
		geminiClient,
		devices,
		prompt.NewEngine(log),
		turnStorage,
		usageStorage,
		wsServer,
		corrector,
		voicechat.ServiceConfig{
			Model:           cfg.Gemini.RealtimeModel,
			Voice:           cfg.Gemini.Voice,
			TemplatePath:    cfg.Session.TemplatePath,
			MaxSessionAge:   time.Duration(cfg.Session.MaxSessionAgeMins) * time.Minute,
			CleanupInterval: time.Duration(cfg.Session.CleanupIntervalSecs) * time.Second,
		},
		log,
	)

	// Create API router
	router := api.NewRouter(chatService, turnStorage, wsServer, cfg, log)

	// --- Setup for multiple HTTP servers ---
	var servers []*http.Server
	allPorts := []int{cfg.Server.Port}
	if len(cfg.Server.AdditionalPorts) > 0 {
		allPorts = append(allPorts, cfg.Server.AdditionalPorts...)
	}

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	for _, port := range allPorts {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		server := &http.Server{
			Addr:         addr,
			Handler:      router.Routes(),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// End active conversations first so usage gets recorded
	log.Info("Stopping voice chat service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	chatService.Shutdown(shutdownCtx)
	shutdownCancel()
	log.Info("Voice chat service stopped.")

	// Shutdown all HTTP servers
	log.Info("Shutting down HTTP servers...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(httpCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait()

	log.Info("Server fully stopped")
}
