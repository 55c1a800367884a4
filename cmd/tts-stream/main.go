// Command tts-stream synthesizes text through the streaming TTS service,
// plays it while it arrives and optionally saves the finished asset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/tts-stream/internal/catalog"
	"github.com/book-expert/tts-stream/internal/config"
	"github.com/book-expert/tts-stream/internal/controller"
	"github.com/book-expert/tts-stream/internal/objectstore"
	"github.com/book-expert/tts-stream/internal/observe"
	"github.com/book-expert/tts-stream/internal/playback"
	"github.com/book-expert/tts-stream/internal/synthesis"
	"github.com/book-expert/tts-stream/internal/text"
)

// Flag names.
const (
	flagText   = "text"
	flagFile   = "file"
	flagVoice  = "voice"
	flagFormat = "format"
	flagTitle  = "title"
	flagOutput = "output"
	flagMute   = "mute"
	flagHealth = "health"
)

// Flag descriptions.
const (
	flagTextDesc   = "Text to speak"
	flagFileDesc   = "File containing the text to speak"
	flagVoiceDesc  = "Voice to synthesize with (defaults to synthesis.voice)"
	flagFormatDesc = "Audio encoding: mp3, wav, ogg or aac"
	flagTitleDesc  = "Save the finished asset as a work with this title"
	flagOutputDesc = "Write the finished asset to this path"
	flagMuteDesc   = "Synthesize without playing"
	flagHealthDesc = "Check synthesis service health and exit"
)

// Error and log messages.
const (
	msgEitherTextOrFile  = "either --text or --file must be provided"
	msgCannotSpecifyBoth = "cannot specify both --text and --file"
	errServiceNotHealthy = "Synthesis service is not healthy: %v\n"
	msgServiceHealthy    = "Synthesis service is healthy"
	msgProgress          = "\r%d/%s chunks ready, %d failed (%s)"
	msgSaved             = "\nSaved as work %s (%s)\n"
	msgWritten           = "\nWrote %s\n"

	logStarting       = "tts-stream starting (transport %s, playback %s)"
	logMetricsServing = "Serving metrics on %s"
	logSessionError   = "Session ended with error: %v"
	logShutdownFailed = "Failed to shut down telemetry: %v"
)

const (
	bootstrapLogFile = "tts-stream-bootstrap.log"
	logFile          = "tts-stream.log"
	shutdownTimeout  = 5 * time.Second
	headerTimeout    = 10 * time.Second
	outputFileMode   = 0o644
)

var (
	errEitherTextOrFile  = errors.New(msgEitherTextOrFile)
	errCannotSpecifyBoth = errors.New(msgCannotSpecifyBoth)
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text   string
	file   string
	voice  string
	format string
	title  string
	output string
	mute   bool
	health bool
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	if flags.health {
		return handleHealthCheck(ctx, cfg, log)
	}

	input, err := readInput(flags)
	if err != nil {
		flag.Usage()

		return err
	}

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "tts-stream"})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := shutdown(shutdownCtx)
		if shutdownErr != nil {
			log.Warn(logShutdownFailed, shutdownErr)
		}
	}()

	return execute(ctx, cfg, log, flags, input)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(fs *flag.FlagSet, args []string) appFlags {
	var flags appFlags
	fs.StringVar(&flags.text, flagText, "", flagTextDesc)
	fs.StringVar(&flags.file, flagFile, "", flagFileDesc)
	fs.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	fs.StringVar(&flags.format, flagFormat, "", flagFormatDesc)
	fs.StringVar(&flags.title, flagTitle, "", flagTitleDesc)
	fs.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	fs.BoolVar(&flags.mute, flagMute, false, flagMuteDesc)
	fs.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	_ = fs.Parse(args)

	return flags
}

// setup loads configuration with a bootstrap logger, then opens the final logger.
func setup() (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err == nil {
		err = cfg.RequireSynthesis()
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, err
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	return cfg, log, nil
}

// readInput returns the text to speak from exactly one of --text or --file.
func readInput(flags appFlags) (string, error) {
	switch {
	case flags.text == "" && flags.file == "":
		return "", errEitherTextOrFile
	case flags.text != "" && flags.file != "":
		return "", errCannotSpecifyBoth
	case flags.text != "":
		return flags.text, nil
	}

	data, err := os.ReadFile(flags.file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", flags.file, err)
	}

	return string(data), nil
}

func handleHealthCheck(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	client := synthesis.NewClient(cfg.Synthesis.BaseURL, cfg.OpenTimeout(), log)

	err := client.HealthCheck(ctx)
	if err != nil {
		log.Error("Health check failed: %v", err)
		fmt.Printf(errServiceNotHealthy, err)

		return err
	}

	fmt.Println(msgServiceHealthy)

	return nil
}

// buildTransport returns the configured synthesis transport and its label.
func buildTransport(cfg *config.Config, log *logger.Logger) (synthesis.Transport, string) {
	if cfg.Synthesis.Transport == config.TransportWebSocket {
		return synthesis.NewWSClient(cfg.Synthesis.BaseURL, cfg.OpenTimeout(), log), config.TransportWebSocket
	}

	return synthesis.NewClient(cfg.Synthesis.BaseURL, cfg.OpenTimeout(), log), config.TransportHTTP
}

// buildDevices returns the playback device for mode and the chunked fallback
// used when progressive playback is unavailable.
func buildDevices(cfg *config.Config, mode string, encoding synthesis.Encoding, log *logger.Logger) (
	playback.Device, playback.Device, error,
) {
	if mode == config.PlaybackNone {
		return playback.NullDevice{}, nil, nil
	}

	clipPlayer, err := playback.NewExecClipPlayer(cfg.Playback.ClipPlayerBinary, cfg.Playback.ClipPlayerArgs,
		encoding.Extension(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure clip player: %w", err)
	}

	chunked := playback.NewChunkDevice(clipPlayer)

	if mode == config.PlaybackChunked {
		return chunked, nil, nil
	}

	progressive, err := playback.NewProcessDevice(cfg.Playback.PlayerBinary, cfg.Playback.PlayerArgs, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure player: %w", err)
	}

	return progressive, chunked, nil
}

// persistence connects to NATS and returns the save collaborators. The
// returned close function drains the connection.
func persistence(cfg *config.Config) (saveTargets, func(), error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return saveTargets{}, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return saveTargets{}, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return saveTargets{}, nil, err
	}

	closeFn := func() { _ = natsConnection.Drain() }

	return saveTargets{
		uploader: store,
		creator:  catalog.NewClient(natsConnection, cfg.NATS.WorkCreateSubject, cfg.RequestTimeout()),
	}, closeFn, nil
}

type saveTargets struct {
	uploader *objectstore.NatsObjectStore
	creator  *catalog.Client
}

func execute(ctx context.Context, cfg *config.Config, log *logger.Logger, flags appFlags, input string) error {
	mode := cfg.Playback.Mode
	if flags.mute {
		mode = config.PlaybackNone
	}

	req := synthesis.Request{
		Text:     input,
		Voice:    firstNonEmpty(flags.voice, cfg.Synthesis.Voice),
		Encoding: synthesis.Encoding(firstNonEmpty(flags.format, cfg.Synthesis.Format)),
	}.WithDefaults()

	device, fallback, err := buildDevices(cfg, mode, req.Encoding, log)
	if err != nil {
		return err
	}

	transport, transportName := buildTransport(cfg, log)

	options := controller.Options{
		Transport:      transport,
		TransportName:  transportName,
		Device:         device,
		FallbackDevice: fallback,
		MaxTextLength:  cfg.Synthesis.MaxTextLength,
		Log:            log,
	}

	if cfg.Synthesis.NormalizeText {
		options.Normalizer = text.NewNormalizer(text.DefaultOptions())
	}

	if flags.title != "" {
		collaborators, closeFn, persistErr := persistence(cfg)
		if persistErr != nil {
			return persistErr
		}

		defer closeFn()

		options.Uploader = collaborators.uploader
		options.WorkCreator = collaborators.creator
	}

	ctrl, err := controller.New(options)
	if err != nil {
		return err
	}

	log.Info(logStarting, transportName, mode)

	group, groupCtx := errgroup.WithContext(ctx)
	sessionDone := make(chan struct{})

	if cfg.Metrics.ListenAddress != "" {
		group.Go(func() error {
			return serveMetrics(groupCtx, sessionDone, cfg.Metrics.ListenAddress, log)
		})
	}

	group.Go(func() error {
		defer close(sessionDone)

		return speak(groupCtx, ctrl, req, flags, log)
	})

	return group.Wait()
}

// speak runs one session to its end, then writes and saves the asset as asked.
func speak(ctx context.Context, ctrl *controller.Controller, req synthesis.Request, flags appFlags,
	log *logger.Logger,
) error {
	session, err := ctrl.Start(ctx, req)
	if err != nil {
		return err
	}

	session.Subscribe(controller.Listener{OnProgress: printProgress})

	<-session.Done()

	err = session.Err()
	if err != nil {
		log.Error(logSessionError, err)

		return err
	}

	if ctx.Err() != nil {
		return nil
	}

	if flags.output != "" {
		err = writeAsset(session, flags.output)
		if err != nil {
			return err
		}
	}

	if flags.title == "" {
		return nil
	}

	result, err := ctrl.Save(ctx, session, flags.title)
	if err != nil {
		return err
	}

	fmt.Printf(msgSaved, result.WorkID, result.AssetURL)

	return nil
}

func writeAsset(session *controller.Session, path string) error {
	asset, err := session.Asset()
	if err != nil {
		return err
	}

	err = os.WriteFile(path, asset, outputFileMode)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf(msgWritten, path)

	return nil
}

func printProgress(progress controller.Progress) {
	total := "?"
	if progress.Total >= 0 {
		total = fmt.Sprint(progress.Total)
	}

	fmt.Printf(msgProgress, progress.Completed, total, progress.Failed, progress.Elapsed.Round(time.Millisecond))
}

// serveMetrics exposes the Prometheus registry until ctx is done or the
// session finished.
func serveMetrics(ctx context.Context, sessionDone <-chan struct{}, address string, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: headerTimeout}

	go func() {
		select {
		case <-ctx.Done():
		case <-sessionDone:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info(logMetricsServing, address)

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}

	return ""
}
