package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tstream/internal"
	"tstream/stream"
	"tstream/transfer"
	"tstream/utils"
)

// options holds the values of the command line flags
type options struct {
	rateLimit string
	quiet     bool
	async     bool
	chunkSize int
	limiter   string
	proxyURL  string
	timeout   time.Duration
	debug     bool
	logLevel  string
	logFile   string

	config *internal.Config
}

var rootCmd = NewRootCommand()

// NewRootCommand builds the tstream command
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:     "tstream [flags] <input-url> <output-url>",
		Short:   "Copy a stream from one URL to another",
		Version: "v1.0.0",
		Long: `tstream copies bytes from an input endpoint to an output endpoint,
chunk by chunk, with optional rate limiting and live progress.

Supported URLs:
  /path/to/file, file:///path/to/file   local files (output is locked while written)
  http://host/path, https://host/path   input only
  tcp://host:port                       raw TCP socket
  mem://name                            in-memory buffer

Examples:
  tstream ./in.bin ./out.bin
  tstream -r 500K https://example.com/image.iso /tmp/image.iso
  tstream --async --proxy socks5://127.0.0.1:1080 tcp://10.0.0.5:9000 ./capture.bin

Environment Variables:
  TSTREAM_CHUNK_SIZE    Bytes per read/write step
  TSTREAM_RATE          Default rate limit in bytes/s
  TSTREAM_LIMITER       Rate limiter (window or bucket)
  TSTREAM_TIMEOUT       Network timeout in seconds
  TSTREAM_PROXY         Proxy URL for http and tcp endpoints`,
		Args: cobra.ExactArgs(2),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.loadConfiguration(cmd); err != nil {
				return fmt.Errorf("configuration error: %v", err)
			}
			if err := internal.InitLogger(opts.config); err != nil {
				return fmt.Errorf("failed to initialize logger: %v", err)
			}

			internal.LogDebug("Configuration loaded: chunk=%d, rate=%d, limiter=%s, timeout=%v",
				opts.config.ChunkSize, opts.config.DefaultRate, opts.config.Limiter, opts.config.Timeout)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.rateLimit, "limit-rate", "r", "", "Bandwidth limit (e.g., 5M for 5MB/s) (env: TSTREAM_RATE)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress bar output")
	flags.BoolVar(&opts.async, "async", false, "Drive the transfer with completions instead of blocking calls")
	flags.IntVar(&opts.chunkSize, "chunk-size", internal.DefaultChunkSize, "Bytes per read/write step (env: TSTREAM_CHUNK_SIZE)")
	flags.StringVar(&opts.limiter, "limiter", string(internal.LimiterWindow), "Rate limiter: window or bucket (env: TSTREAM_LIMITER)")
	flags.StringVar(&opts.proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: TSTREAM_PROXY)")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Network timeout (env: TSTREAM_TIMEOUT)")

	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging (env: TSTREAM_DEBUG)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: TSTREAM_LOG_LEVEL)")
	flags.StringVar(&opts.logFile, "log-file", "", "Write logs to file instead of stderr (env: TSTREAM_LOG_FILE)")

	return cmd
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfiguration merges defaults, environment and the flags that were set
func (o *options) loadConfiguration(cmd *cobra.Command) error {
	o.config = internal.DefaultConfig()
	o.config.LoadFromEnv()

	flags := cmd.Flags()
	if flags.Changed("limit-rate") {
		rate, err := utils.ParseRateLimit(o.rateLimit)
		if err != nil {
			validationErr := internal.NewValidationErrorWithValue("limit-rate", "invalid format", o.rateLimit).
				WithSuggestion("Use formats like 1M (1 MB/s), 500K (500 KB/s), 2G (2 GB/s), or 1024 (1024 bytes/s)")
			internal.LogValidationError(validationErr)
			return fmt.Errorf("invalid rate limit format: %v", err)
		}
		o.config.DefaultRate = rate
	}
	if flags.Changed("chunk-size") {
		o.config.ChunkSize = o.chunkSize
	}
	if flags.Changed("limiter") {
		o.config.Limiter = internal.LimiterKind(strings.ToLower(o.limiter))
	}
	if flags.Changed("proxy") {
		if err := validateProxyURL(o.proxyURL); err != nil {
			return fmt.Errorf("invalid proxy URL: %v", err)
		}
		o.config.ProxyURL = o.proxyURL
	}
	if flags.Changed("timeout") {
		o.config.Timeout = o.timeout
	}

	if o.debug {
		o.config.EnableDebug = true
		o.config.LogLevel = "debug"
	}
	if o.quiet {
		o.config.QuietMode = true
	}
	if o.logLevel != "" {
		o.config.LogLevel = o.logLevel
	}
	if o.logFile != "" {
		o.config.LogFile = o.logFile
	}

	return o.config.ValidateConfig()
}

// validateProxyURL validates the proxy URL format
func validateProxyURL(proxyURL string) error {
	if proxyURL == "" {
		return nil
	}
	if !strings.HasPrefix(proxyURL, "http://") &&
		!strings.HasPrefix(proxyURL, "https://") &&
		!strings.HasPrefix(proxyURL, "socks5://") {
		return fmt.Errorf("unsupported proxy scheme, use http://, https://, or socks5://")
	}
	return nil
}

func (o *options) run(cmd *cobra.Command, inputURL, outputURL string) error {
	input, err := utils.ParseStreamURL(inputURL)
	if err != nil {
		return fmt.Errorf("invalid input URL: %w", err)
	}
	output, err := utils.ParseStreamURL(outputURL)
	if err != nil {
		return fmt.Errorf("invalid output URL: %w", err)
	}
	internal.LogDebug("Input %s, output %s", input, output)

	out := cmd.OutOrStdout()
	quiet := o.config.QuietMode
	if !quiet {
		fmt.Fprintf(out, "Input:  %s\n", inputURL)
		fmt.Fprintf(out, "Output: %s\n", outputURL)
		if o.config.DefaultRate > 0 {
			fmt.Fprintf(out, "Rate limit: %s/s (%s limiter)\n", humanize.IBytes(uint64(o.config.DefaultRate)), o.config.Limiter)
		}
		if o.config.ProxyURL != "" {
			fmt.Fprintf(out, "Proxy: %s\n", o.config.ProxyURL)
		}
		fmt.Fprintln(out)
	}

	resolver := stream.NewResolver(o.config)
	tracker := utils.NewProgressTrackerWithWriter(inputSize(input), quiet, out)

	if o.async {
		return o.runAsync(resolver, tracker, inputURL, outputURL, out)
	}
	return o.runSync(cmd.Context(), resolver, tracker, inputURL, outputURL, out)
}

// runSync copies on the calling goroutine; a signal cancels the copy
func (o *options) runSync(parent context.Context, resolver *stream.Resolver, tracker *utils.ProgressTracker, inputURL, outputURL string, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var average int64
	config := o.config.TransferConfig()
	config.Func = func(size, rate int64, _ interface{}) bool {
		if size == internal.SizeFinished {
			average = rate
			return true
		}
		tracker.Update(size, rate)
		return true
	}

	saved, err := transfer.SaveUU(ctx, resolver, inputURL, outputURL, config)
	if err != nil && ctx.Err() != nil {
		tracker.Finish(average, true)
		internal.LogInfo("Transfer cancelled after %d bytes", saved)
		return fmt.Errorf("transfer cancelled after %s", humanize.IBytes(uint64(max(saved, 0))))
	}
	if err != nil {
		tracker.Finish(average, true)
		logTransferError(err)
		return fmt.Errorf("transfer failed: %w", err)
	}

	tracker.Finish(average, false)
	internal.LogInfo("Transfer completed: %d bytes", saved)
	if !tracker.IsQuiet() {
		fmt.Fprintf(out, "Saved to: %s\n", outputURL)
	}
	return nil
}

// runAsync drives the transfer on a dispatcher loop and stops it on a signal
func (o *options) runAsync(resolver *stream.Resolver, tracker *utils.ProgressTracker, inputURL, outputURL string, out io.Writer) error {
	loop := stream.NewLoop()
	defer loop.Close()

	finished := make(chan int64, 1)
	config := o.config.TransferConfig()
	config.Func = func(size, rate int64, _ interface{}) bool {
		if size == internal.SizeFinished {
			select {
			case finished <- rate:
			default:
			}
			return true
		}
		tracker.Update(size, rate)
		return true
	}

	t, err := transfer.InitUU(resolver, loop, inputURL, outputURL, config)
	if err != nil {
		logTransferError(err)
		return fmt.Errorf("failed to prepare transfer: %w", err)
	}
	defer releaseTransfer(t, loop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := t.Start(); err != nil {
		return fmt.Errorf("failed to start transfer: %w", err)
	}
	internal.LogDebug("Transfer %s started", t.ID())

	average, err := awaitTransfer(t, finished, sigChan)
	if err != nil {
		return err
	}

	if err := t.Err(); err != nil {
		tracker.Finish(average, true)
		logTransferError(err)
		return fmt.Errorf("transfer failed: %w", err)
	}
	if !t.Finished() {
		tracker.Finish(average, true)
		return fmt.Errorf("transfer stopped after %s", humanize.IBytes(uint64(t.Saved())))
	}

	tracker.Finish(average, false)
	internal.LogInfo("Transfer %s completed: %d bytes", t.ID(), t.Saved())
	if !tracker.IsQuiet() {
		fmt.Fprintf(out, "Saved to: %s\n", outputURL)
	}
	return nil
}

// awaitTransfer waits for the final callback, stopping the transfer first
// when a signal arrives. It returns the average rate.
func awaitTransfer(t *transfer.Transfer, finished <-chan int64, signals <-chan os.Signal) (int64, error) {
	select {
	case average := <-finished:
		return average, nil
	case sig := <-signals:
		internal.LogInfo("Received signal %v, stopping transfer %s", sig, t.ID())
		if err := t.Stop(); err != nil {
			return 0, err
		}
		return <-finished, nil
	}
}

// releaseTransfer exits t and waits for the loop to drain.
//
// After Stop an endpoint operation may still be in flight. Exit closes the
// endpoints, which ends a blocked read or write with an error; an open that
// completes later is closed by the async adapter. The completion itself is
// dropped by the exited transfer, so once the loop is done nothing touches
// the endpoints or the callback.
func releaseTransfer(t *transfer.Transfer, loop *stream.Loop) {
	if err := t.Exit(); err != nil {
		internal.LogDebug("Transfer %s exit: %v", t.ID(), err)
	}
	loop.Close()
	<-loop.Done()
}

// inputSize returns the size of a local input for the progress bar, 0 if unknown
func inputSize(info *utils.URLInfo) int64 {
	if !info.IsLocal() {
		return 0
	}
	size, err := utils.NewFileOperations().GetFileSize(info.Path)
	if err != nil {
		return 0
	}
	return size
}

func logTransferError(err error) {
	var transferErr *internal.TransferError
	if errors.As(err, &transferErr) {
		internal.LogTransferError(transferErr)
		return
	}
	internal.LogError("%v", err)
}
