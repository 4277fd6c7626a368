package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/askdoc/internal/logging"
	"github.com/xhad/askdoc/internal/startup"
	"github.com/xhad/askdoc/internal/types"
	"github.com/xhad/askdoc/pkg/session"
)

// newSession is replaced in tests.
var newSession = session.NewFromConfig

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := realMain(ctx, os.Args[1:], os.Getenv, streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stop()
	os.Exit(code)
}

func realMain(ctx context.Context, args []string, getenv func(string) string, s streams) int {
	if err := run(ctx, args, getenv, s); err != nil {
		fmt.Fprintf(s.err, "Error: %v\n", err)
		return 1
	}
	return 0
}

func getSpinner(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

func run(ctx context.Context, args []string, getenv func(string) string, s streams) error {
	flags := flag.NewFlagSet("askdoc", flag.ContinueOnError)
	flags.SetOutput(s.err)
	configPath := flags.String("config", "", "Path to config file")
	envFile := flags.String("env-file", ".env", "Path to .env file")
	file := flags.String("file", "", "PDF document to ask questions about")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("please provide a PDF document with -file")
	}
	if !strings.EqualFold(filepath.Ext(*file), ".pdf") {
		return fmt.Errorf("%w: %s", types.ErrNotPDF, *file)
	}

	cfg, apiKey, err := startup.Prepare(startup.Options{
		ConfigPath: *configPath,
		EnvFile:    *envFile,
		Getenv:     getenv,
	})
	if err != nil {
		return err
	}

	logging.Setup(s.err, cfg.Log.Level, cfg.Log.JSON)

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *file, err)
	}

	sess, err := newSession(ctx, cfg, apiKey)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer sess.Close()

	name := filepath.Base(*file)
	spinner := getSpinner(s.out, fmt.Sprintf("Processing %s... This may take a moment.", name))
	res, err := sess.Upload(ctx, name, data)
	spinner.Finish()
	if err != nil {
		return fmt.Errorf("failed to process document: %w", err)
	}
	color.New(color.FgGreen).Fprintf(s.out, "✓ Document processed into %d chunks! You can now ask questions.\n", res.Chunks)

	return chat(ctx, sess, s)
}

func chat(ctx context.Context, sess *session.Session, s streams) error {
	color.New(color.FgCyan).Fprintln(s.out, "\nAsk a question about your document (type 'exit' to quit)")

	scanner := bufio.NewScanner(s.in)
	userPrompt := color.New(color.FgGreen).FprintfFunc()
	assistantPrompt := color.New(color.FgCyan).FprintfFunc()
	errorLine := color.New(color.FgRed).FprintfFunc()

	for {
		userPrompt(s.out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if strings.ToLower(question) == "exit" {
			break
		}
		if question == "" {
			continue
		}

		spinner := getSpinner(s.out, "Searching for the answer...")
		answer, err := sess.Ask(ctx, question)
		spinner.Finish()

		if err != nil {
			errorLine(s.out, "Error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		assistantPrompt(s.out, "\nAssistant: ")
		fmt.Fprintln(s.out, answer.Text)
	}

	return scanner.Err()
}
