package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/xhad/askdoc/internal/logging"
	"github.com/xhad/askdoc/internal/startup"
	"github.com/xhad/askdoc/pkg/session"
	"github.com/xhad/askdoc/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := realMain(ctx, os.Args[1:], os.Getenv, os.Stderr)
	stop()
	os.Exit(code)
}

func realMain(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) int {
	if err := run(ctx, args, getenv, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) error {
	flags := flag.NewFlagSet("askdoc-web", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "Path to config file")
	envFile := flags.String("env-file", ".env", "Path to .env file")
	addr := flags.String("addr", "", "Listen address (overrides server.addr)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, apiKey, err := startup.Prepare(startup.Options{
		ConfigPath: *configPath,
		EnvFile:    *envFile,
		Getenv:     getenv,
	})
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logging.Setup(stderr, cfg.Log.Level, cfg.Log.JSON)

	sess, err := session.NewFromConfig(ctx, cfg, apiKey)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer sess.Close()

	srv, err := server.New(server.Config{
		Title:       cfg.Server.Title,
		MaxUploadMB: cfg.Server.MaxUploadMB,
	}, sess)
	if err != nil {
		return err
	}

	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
