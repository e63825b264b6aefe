package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/judgecore/executor/api"
	"github.com/judgecore/executor/internal/config"
	"github.com/judgecore/executor/internal/executor"
	"github.com/judgecore/executor/internal/lang"
	"github.com/judgecore/executor/internal/metrics"
	"github.com/judgecore/executor/internal/sandbox"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	cmd := &cli.Command{
		Name:  "executor",
		Usage: "sandboxed execution core for contest submissions",
		Commands: []*cli.Command{
			runCommand(logger),
			checkCommand(logger),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func runCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute one submission and print the result",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Required: true},
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Required: true, Usage: "path to the source file"},
			&cli.StringFlag{Name: "stdin", Usage: "path to an stdin file"},
			&cli.IntFlag{Name: "time-ms", Value: 2000},
			&cli.IntFlag{Name: "memory-mb", Value: 256},
			&cli.BoolFlag{Name: "container", Usage: "run inside the judge container"},
			&cli.StringFlag{Name: "security", Value: "low", Usage: "security level: low or high"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			source, err := os.ReadFile(cmd.String("source"))
			if err != nil {
				return fmt.Errorf("failed to read source file: %w", err)
			}
			var stdin []byte
			if p := cmd.String("stdin"); p != "" {
				stdin, err = os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("failed to read stdin file: %w", err)
				}
			}

			exec, cleanup, err := buildExecutor(ctx, logger, cmd.Bool("container"))
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				exec.Shutdown()
			}()

			res, err := exec.Execute(ctx, api.ExecutionRequest{
				Language:      cmd.String("language"),
				SourceCode:    string(source),
				Stdin:         string(stdin),
				TimeLimitMs:   cmd.Int("time-ms"),
				MemoryLimitMb: cmd.Int("memory-mb"),
				SecurityLevel: api.SecurityLevel(cmd.String("security")),
				Containerized: cmd.Bool("container"),
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func checkCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "verify the execution environment",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.Read(logger)

			box, err := sandbox.NewRunner(cfg.SandboxImage, logger)
			if err != nil {
				return fmt.Errorf("docker unavailable: %w", err)
			}
			if err := box.EnsureImage(ctx); err != nil {
				return fmt.Errorf("judge image not usable: %w", err)
			}
			logger.Info("judge image ok")

			exec, cleanup, err := buildExecutor(ctx, logger, false)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := exec.Execute(ctx, api.ExecutionRequest{
				Language:      "shell",
				SourceCode:    "echo hello\n",
				TimeLimitMs:   2000,
				MemoryLimitMb: 64,
			})
			if err != nil {
				return err
			}
			if res.Verdict != api.Accepted {
				return fmt.Errorf("smoke run finished with verdict %s", res.Verdict)
			}
			logger.Info("smoke run ok", "verdict", res.Verdict.String())
			return nil
		},
	}
}

func buildExecutor(ctx context.Context, logger *slog.Logger, needSandbox bool) (*executor.Executor, func(), error) {
	cfg := config.Read(logger)
	cleanup := func() {}

	langs := lang.Default()
	if cfg.LanguageTablePath != "" {
		var err error
		langs, err = lang.LoadFile(cfg.LanguageTablePath)
		if err != nil {
			return nil, nil, err
		}
	}

	var sink metrics.Sink = metrics.NewTermSink()
	switch cfg.MetricsSink {
	case "nats":
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		cleanup = nc.Close
		sink = metrics.NewNatsSink(nc, cfg.NatsSubject, logger)
	case "sqs":
		s, err := metrics.NewSqsSink(ctx, cfg.SqsQueueUrl, cfg.AwsRegion, logger)
		if err != nil {
			return nil, nil, err
		}
		sink = s
	case "", "term":
	default:
		logger.Warn("unknown metrics sink, using terminal", "sink", cfg.MetricsSink)
	}

	var box *sandbox.Runner
	if needSandbox {
		var err error
		box, err = sandbox.NewRunner(cfg.SandboxImage, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("docker unavailable: %w", err)
		}
		// The image build is a one-time step before executions start.
		if err := box.EnsureImage(ctx); err != nil {
			return nil, nil, err
		}
	}

	exec, err := executor.New(executor.Config{
		WorkspaceRoot:  cfg.WorkspaceRoot,
		MaxConcurrent:  cfg.MaxConcurrent,
		SandboxImage:   cfg.SandboxImage,
		MaxOutputBytes: cfg.MaxOutputBytes,
	}, executor.Options{
		Langs:   langs,
		Sink:    sink,
		Sandbox: box,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return exec, cleanup, nil
}
