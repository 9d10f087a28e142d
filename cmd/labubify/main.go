// Command labubify sends a photo to a running relay and saves the
// Labubu-style result.
//
//	labubify -relay http://localhost:8080 -out . photo.jpg
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kiranshivaraju/labubify/internal/client"
)

func main() {
	var (
		relayFlag   string
		outFlag     string
		timeoutFlag time.Duration
		verboseFlag bool
	)
	flag.StringVar(&relayFlag, "relay", envOr("LABUBIFY_RELAY_URL", "http://localhost:8080"), "Base URL of the labubify relay")
	flag.StringVar(&outFlag, "out", ".", "Directory the result is saved to")
	flag.DurationVar(&timeoutFlag, "timeout", 10*time.Minute, "Overall time allowed for the transformation and download")
	flag.BoolVar(&verboseFlag, "v", false, "Log progress to stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <image>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelError
	if verboseFlag {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), strings.TrimSpace(relayFlag), outFlag, timeoutFlag); err != nil {
		fmt.Fprintln(os.Stderr, client.Notice(err))
		slog.Info("run failed", "error", err)
		os.Exit(1)
	}
}

func run(path, relayURL, outDir string, timeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := client.New(relayURL, timeout)
	if err := c.Select(path); err != nil {
		return err
	}

	slog.Info("transforming", "path", path, "relay", relayURL)
	url, err := c.Transform(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Transformation complete! Your Labubu version is ready:", url)

	dest, err := c.Download(ctx, outDir)
	if err != nil {
		return err
	}
	fmt.Println("Saved", dest)
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
