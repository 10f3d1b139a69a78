package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bosley/parley/audio"
	"github.com/bosley/parley/channel"
	"github.com/bosley/parley/config"
	"github.com/bosley/parley/convo"
	"github.com/bosley/parley/inbox"
	"github.com/bosley/parley/metrics"
	"github.com/bosley/parley/monitor"
	"github.com/bosley/parley/player"
	"github.com/bosley/parley/recognition"
	"github.com/bosley/parley/transcribe"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	serverURL := flag.String("server", "", "Override upload base URL")
	socketURL := flag.String("socket", "", "Override websocket URL")
	conversation := flag.String("conversation", "", "Conversation ID to resume (new one minted when empty)")
	playFile := flag.String("play", "", "Play audio file and exit")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", 0, "Audio input device ID to use")
	flag.Parse()

	// Optional .env for local development; absence is fine.
	godotenv.Load()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("Failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *serverURL != "" {
		cfg.Server.BaseURL = *serverURL
	}
	if *socketURL != "" {
		cfg.Server.SocketURL = *socketURL
	}
	if *deviceID != 0 {
		cfg.Audio.Device = *deviceID
	}

	setupLogging(cfg.Logging)

	if *playFile != "" {
		p := player.New()
		if err := p.PlayFile(*playFile); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	if *listDevices {
		devices, err := audio.ListDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for i, device := range devices {
			fmt.Printf("[%d] %s\n", i, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	token := os.Getenv("PARLEY_TOKEN")
	if token == "" {
		slog.Error("PARLEY_TOKEN environment variable is not set")
		os.Exit(1)
	}

	conversationID := *conversation
	if conversationID == "" {
		conversationID = uuid.New().String()
		slog.Info("Starting new conversation", "conversation", conversationID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg, conversationID, token); err != nil {
		slog.Error("Pipeline failed", "error", err)
		os.Exit(1)
	}
	slog.Debug("Program exiting")
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, cfg *config.Config, conversationID, token string) error {
	registry := prometheus.NewRegistry()
	pipeline := metrics.NewPipeline(registry)

	transcriber, err := transcribe.NewClient(transcribe.Config{
		BaseURL: cfg.Server.BaseURL,
		Token:   token,
	})
	if err != nil {
		return fmt.Errorf("creating transcription client: %w", err)
	}

	ch, err := channel.Dial(ctx, channel.Config{
		URL:          cfg.Server.SocketURL,
		Conversation: conversationID,
		Token:        token,
	})
	if err != nil {
		return fmt.Errorf("connecting streaming channel: %w", err)
	}
	defer ch.Close()

	speaker := player.New()
	speaker.Start()
	defer speaker.Stop()

	transcript := convo.NewTranscript()
	bridge := convo.NewBridge(transcript, ch, pipeline)
	bridge.Play = speaker.Play

	assembler := convo.NewAssembler(convo.Config{
		Conversation:  conversationID,
		ContextWindow: cfg.Pipeline.ContextWindow,
		StallTimeout:  cfg.Pipeline.GetStallTimeout(),
	}, transcript, ch, bridge, pipeline)
	assembler.OnNotice = func(notice string) {
		fmt.Printf("\n[notice] %s\n> ", notice)
	}

	if cfg.Monitor.Enabled {
		mon := monitor.NewServer(cfg.Monitor.Addr, transcript, registry)
		transcript.OnChange = mon.Broadcast
		go func() {
			if err := mon.Start(ctx); err != nil {
				slog.Error("Monitor stopped", "error", err)
			}
		}()
	}

	submitCapture := func(ctx context.Context, result *audio.CaptureResult) {
		transcribed, err := transcriber.Transcribe(ctx, result)
		if err != nil {
			pipeline.UploadFailures.Inc()
			slog.Error("Transcription failed", "error", err)
			fmt.Printf("\n[notice] transcription failed: %v\n> ", err)
			return
		}
		if err := assembler.SubmitTranscript(ctx, transcribed); err != nil {
			slog.Error("Failed to submit transcript", "error", err)
		}
	}

	if cfg.Inbox.Enabled {
		watcher, err := inbox.New(cfg.Inbox.Dir, submitCapture)
		if err != nil {
			return fmt.Errorf("starting inbox watcher: %w", err)
		}
		go watcher.Run(ctx)
	}

	var overlay *recognition.Overlay
	if cfg.Recognition.Enabled {
		overlay = recognition.NewOverlay(&recognition.CommandRecognizer{
			Path: cfg.Recognition.Command,
			Args: cfg.Recognition.Args,
		})
		overlay.OnUpdate = func(text string) {
			fmt.Printf("\r[hearing] %s", text)
		}
	}

	device := audio.NewPortAudioDevice(cfg.Audio.Device, cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer)
	session := audio.NewCaptureSession(device)
	if overlay != nil {
		session.OnStart = func() { overlay.Start(ctx) }
		session.OnStop = overlay.Stop
	}

	go assembler.Run(ctx, ch.Events())

	fmt.Println("Press Enter to toggle recording, or type a message and press Enter to send it.")
	fmt.Print("> ")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			// Typed input bypasses capture and transcription.
			if err := assembler.SubmitTranscript(ctx, &transcribe.Transcript{Text: line}); err != nil {
				slog.Error("Failed to submit typed message", "error", err)
			}
			fmt.Print("> ")
			continue
		}

		result, started, err := session.Toggle()
		switch {
		case err != nil:
			slog.Error("Capture toggle failed", "error", err)
			fmt.Print("> ")
		case started:
			fmt.Println("[recording] press Enter to stop")
		default:
			if result == nil {
				fmt.Println("[recording] nothing captured")
				fmt.Print("> ")
				continue
			}
			pipeline.CapturesFinalized.Inc()
			fmt.Printf("[recording] captured %s of audio\n> ", result.Duration.Round(10*time.Millisecond))
			go submitCapture(ctx, result)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}
