// Command poll resolves a submission's AI response from the command line.
//
// It drives the same cache-first resolution cascade a frontend embeds: ask
// the server's callback endpoint until a response lands, and render the
// standing fallback notice once the attempt budget runs out. Useful for
// smoke-testing a deployment or watching a submission resolve during demos.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/frayze/stackbuilder-backend/internal/client"
	"github.com/frayze/stackbuilder-backend/internal/config"
	"github.com/frayze/stackbuilder-backend/internal/sysutil"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	submissionID := flag.String("submission", "", "submission id to resolve")
	endpoint := flag.String("endpoint", "", "callback endpoint override (defaults to the configured server)")
	flag.Parse()

	cfg := config.MustLoad()
	sysutil.SetLogLevel(cfg.LogLevel)

	if *submissionID == "" {
		log.Fatal().Msg("-submission is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, resolverConfig(cfg, *endpoint), *submissionID, os.Stdout))
}

// resolverConfig maps the application's polling settings onto a client
// config, pointing it at this deployment's callback endpoint unless an
// explicit override was given.
func resolverConfig(cfg config.Config, endpoint string) client.Config {
	if endpoint == "" {
		base := cfg.Webhook.PublicBaseURL
		if base == "" {
			base = "http://localhost:" + cfg.Port
		}
		endpoint = strings.TrimRight(base, "/") + cfg.APIBasePath + "/callback"
	}
	return client.Config{
		Endpoint:    endpoint,
		Interval:    cfg.Resolver.PollInterval,
		MaxAttempts: cfg.Resolver.MaxAttempts,
		MaxErrors:   cfg.Resolver.MaxErrors,
	}
}

// run polls until the submission resolves and writes the content to out.
// The exit code distinguishes a real response (0) from the fallback notice
// (1) and an aborted or failed poll (2).
func run(ctx context.Context, cc client.Config, submissionID string, out io.Writer) int {
	res := client.NewResolver(client.NewMemoryCache(), cc)

	result, err := res.Await(ctx, submissionID)
	if err != nil {
		log.Error().Err(err).Str("submissionId", submissionID).Msg("polling aborted")
		return 2
	}

	switch result.State {
	case client.StateResolved:
		fmt.Fprintln(out, result.Response.Content)
		return 0
	case client.StateTimedOut:
		log.Warn().
			Int("attempts", result.Attempts).
			Str("submissionId", submissionID).
			Msg("no response in time, rendering fallback")
		fmt.Fprintln(out, result.Response.Content)
		return 1
	default:
		log.Error().Str("state", string(result.State)).Msg("unexpected resolution state")
		return 2
	}
}
