package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RitamPal26/ScribeAI/internal/auth"
	"github.com/RitamPal26/ScribeAI/internal/capture"
	"github.com/RitamPal26/ScribeAI/internal/config"
	"github.com/RitamPal26/ScribeAI/internal/duplex"
	"github.com/RitamPal26/ScribeAI/internal/protocol"
	"github.com/RitamPal26/ScribeAI/internal/recorder"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	token := flag.String("token", "", "Bearer token (minted locally from the configured secret when empty)")
	user := flag.String("user", "local", "User id to mint a local token for")
	source := flag.String("source", protocol.SourceMicrophone, "Capture source: MICROPHONE or TAB_AUDIO")
	title := flag.String("title", "", "Session title")
	audioFile := flag.String("file", "", "Raw PCM-16 file to replay instead of the synthesized tone")
	duration := flag.Duration("duration", 30*time.Second, "How long to record before stopping")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	bearerToken := *token
	if bearerToken == "" {
		authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.GetTokenTTL())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create authenticator: %v\n", err)
			os.Exit(1)
		}
		bearerToken, err = authenticator.IssueToken(*user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to mint token: %v\n", err)
			os.Exit(1)
		}
	}

	channel := duplex.NewChannel(logger, duplex.Config{
		URL:               cfg.Client.ServerURL,
		Token:             bearerToken,
		MaxReconnects:     cfg.Client.MaxReconnects,
		ReconnectBackoff:  cfg.Client.GetReconnectBackoff(),
		MaxReconnectDelay: cfg.Client.GetMaxReconnectDelay(),
	})

	channel.OnStateChange(func(state duplex.State) {
		fmt.Printf("-- connection %s\n", state)
	})

	ctx := context.Background()
	if err := channel.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", cfg.Client.ServerURL, err)
		os.Exit(1)
	}
	defer channel.Close()

	var captureSource capture.Source
	if *audioFile != "" {
		captureSource = capture.NewFileSource(*audioFile, cfg.Audio.SampleRate, cfg.Audio.GetSliceInterval())
	} else {
		captureSource = capture.NewToneSource(440, cfg.Audio.SampleRate, cfg.Audio.GetSliceInterval())
	}

	rec := recorder.NewRecorder(logger, channel, captureSource, recorder.Config{
		Source:         *source,
		Title:          *title,
		FlushInterval:  cfg.Audio.GetFlushInterval(),
		RequestTimeout: cfg.Client.GetRequestTimeout(),
	})
	defer rec.Close()

	// Print fragments as they arrive.
	unsubscribeUpdates := channel.Subscribe(protocol.EventTranscriptionUpdate, func(frame *protocol.Frame) {
		var event protocol.TranscriptionUpdateEvent
		if err := frame.DecodePayload(&event); err != nil {
			return
		}
		if event.Text == "" {
			fmt.Printf("[%6.1fs] #%d (silence)\n", event.Timestamp, event.ChunkIndex)
			return
		}
		fmt.Printf("[%6.1fs] #%d %s\n", event.Timestamp, event.ChunkIndex, event.Text)
	})
	defer unsubscribeUpdates()

	unsubscribeSummary := channel.Subscribe(protocol.EventSummaryGenerated, func(frame *protocol.Frame) {
		var event protocol.SummaryGeneratedEvent
		if err := frame.DecodePayload(&event); err != nil {
			return
		}
		fmt.Printf("\n== Summary ==\n%s\n", event.Summary.Summary)
		for _, point := range event.Summary.KeyPoints {
			fmt.Printf("  * %s\n", point)
		}
		for _, item := range event.Summary.ActionItems {
			fmt.Printf("  [ ] %s\n", item)
		}
		for _, decision := range event.Summary.Decisions {
			fmt.Printf("  => %s\n", decision)
		}
	})
	defer unsubscribeSummary()

	if err := rec.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start recording: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("recording session %s (%s), ctrl-c to stop early\n", rec.SessionID(), *source)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-time.After(*duration):
	case sig := <-sigChan:
		fmt.Printf("\n-- received %s, stopping\n", sig)
	}

	if err := rec.Stop(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stop recording: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("-- stopped after %.1fs, %d chunks sent, waiting for processing\n",
		rec.Elapsed().Seconds(), rec.ChunksSent())

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := rec.WaitCompleted(waitCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Session did not complete: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n== Transcript ==\n%s\n", rec.Transcript())
}
