package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"

	"fcfilter/internal/adapter/gateway"
	"fcfilter/internal/adapter/llm"
	"fcfilter/internal/adapter/tool"
	"fcfilter/internal/domain"
	"fcfilter/internal/infra/config"
	"fcfilter/internal/infra/logger"
	"fcfilter/internal/infra/tracer"
	"fcfilter/internal/usecase/filter"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "serve: %v\n", err)
			os.Exit(1)
		}
	case "tools":
		if err := runTools(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "tools: %v\n", err)
			os.Exit(1)
		}
	case "encrypt":
		if err := runEncrypt(os.Args[2:], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'fcfilter --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`fcfilter - function-calling inlet filter for chat pipelines

USAGE:
    fcfilter [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the filter gateway (default)
    tools       Print the tool catalog the task model sees
    encrypt     Encrypt a secret for use as an enc: config value
                Reads the value from the argument or stdin
    doctor      Run health checks on your setup

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./fcfilter.yaml)

CONFIGURATION:
    Config file: ./fcfilter.yaml (optional, defaults apply when missing)
    Environment: FCFILTER_* variables override config
    Secrets:     FCFILTER_CONFIG_KEY decrypts enc: values

EXAMPLES:
    fcfilter                                   # Serve with fcfilter.yaml
    fcfilter serve --config /etc/fcfilter.yaml # Serve with custom config
    fcfilter tools                             # Show registered tools
    FCFILTER_CONFIG_KEY=... fcfilter encrypt sk-123`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("FCFILTER_CONFIG"); p != "" {
		return p
	}
	return "fcfilter.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Task model
	aux := newAuxProvider(cfg, log)

	// 4. Tools
	cat, err := tool.BuildCatalog(ctx, cfg, aux, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	invoker := tool.NewInvoker(cat.Registry, cfg.Tools.Timeout, log)

	// 5. Filter
	f := filter.New(filter.Deps{
		Aux:             aux,
		Tools:           invoker,
		Logger:          log,
		Model:           cfg.Valves.TaskModel,
		Template:        cfg.Valves.Template,
		HistoryTurns:    cfg.Filter.HistoryTurns,
		MaxContextBytes: cfg.Filter.MaxContextBytes,
		Warmer:          aux,
		KeepWarm:        cfg.Aux.KeepWarm,
		WarmupOnStart:   cfg.Aux.WarmupOnStart,
		OnClose:         []func(){cat.Close},
	})
	if err := f.OnStartup(ctx); err != nil {
		cat.Close()
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.OnShutdown(shutdownCtx); err != nil {
			log.Warn("shutdown failed", "error", err)
		}
	}()

	// 6. Gateway
	srv := gateway.NewServer(gateway.HandlerDeps{
		Pipeline: cfg.Pipeline,
		Valves:   cfg.Valves,
		Filter:   f,
		Logger:   log,
	}, cfg.Gateway)

	log.Info("fcfilter started",
		"pipeline", cfg.Pipeline.ID,
		"task_model", cfg.Valves.TaskModel,
		"tools", cat.Registry.Len(),
		"addr", cfg.Gateway.Addr,
	)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	log.Info("shutting down")
	return nil
}

// auxProvider is the task-model client as the rest of the process sees it.
type auxProvider interface {
	domain.LLMProvider
	domain.TextGenerator
	filter.Warmer
}

func newAuxProvider(cfg *config.Config, log *slog.Logger) auxProvider {
	client := llm.NewTaskModelClient(cfg.Valves, cfg.Aux, log)
	if !cfg.Aux.CircuitBreaker.Enabled {
		return client
	}
	return llm.NewCircuitBreakerProvider(client, cfg.Aux.CircuitBreaker, log)
}

func runTools(w io.Writer) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cat, err := tool.BuildCatalog(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer cat.Close()

	out, err := renderMarkdown(tool.Describe(cat.Registry.Specs()), 100)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// renderMarkdown styles md for the terminal, falling back to the raw text
// when no renderer can be built.
func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md, nil
	}
	return r.Render(md)
}

func runEncrypt(args []string, stdin io.Reader, w io.Writer) error {
	passphrase := os.Getenv("FCFILTER_CONFIG_KEY")
	if passphrase == "" {
		return errors.New("FCFILTER_CONFIG_KEY must be set")
	}

	var plaintext string
	switch {
	case len(args) > 0 && !strings.HasPrefix(args[0], "--"):
		plaintext = args[0]
	default:
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read value: %w", err)
		}
		plaintext = strings.TrimRight(line, "\r\n")
	}
	if plaintext == "" {
		return errors.New("nothing to encrypt")
	}

	enc, err := config.EncryptValue(plaintext, passphrase)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "enc:%s\n", enc)
	return err
}
