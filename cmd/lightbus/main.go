// Command lightbus is a CLI front-end's contract stub: the wire surface
// is specified, not a full implementation. This binary exists so the bus
// core (package lightbus) has a runnable host: flag parsing, Redis
// connect, signal-driven graceful shutdown around a configurable
// lightbus.Client. Loading user-authored APIs and config files is left to
// callers embedding this pattern in their own main package.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lightbus-go/lightbus"
	"github.com/lightbus-go/lightbus/internal/config"
	"github.com/lightbus-go/lightbus/internal/lifecycle"
)

const version = "0.1.0-alpha"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "run":
		return runServe(args[1:])
	case "inspect":
		return runInspect(args[1:])
	case "shell":
		return runShell(args[1:])
	case "dumpconfigschema":
		return runDumpConfigSchema(args[1:])
	default:
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: lightbus <run|inspect|shell|dumpconfigschema> [flags]")
}

func newFlagSet(name string) (*flag.FlagSet, *config.Config) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfg := config.Defaults()

	fs.StringVar(&cfg.Transport.RedisAddr, "redis-addr", cfg.Transport.RedisAddr, "Redis server address")
	fs.StringVar(&cfg.Transport.RedisPassword, "redis-password", cfg.Transport.RedisPassword, "Redis password")
	fs.IntVar(&cfg.Transport.RedisDB, "redis-db", cfg.Transport.RedisDB, "Redis logical database")
	fs.StringVar(&cfg.Transport.KeyPrefix, "key-prefix", cfg.Transport.KeyPrefix, "Key prefix for all broker keys")
	fs.IntVar(&cfg.Worker.Concurrency, "concurrency", cfg.Worker.Concurrency, "Per-loop handler concurrency")
	fs.DurationVar(&cfg.Worker.AcknowledgementTimeout, "ack-timeout", cfg.Worker.AcknowledgementTimeout, "Lease acknowledgement timeout")
	fs.DurationVar(&cfg.Worker.GracefulShutdownTimeout, "shutdown-timeout", cfg.Worker.GracefulShutdownTimeout, "Graceful shutdown drain timeout")
	fs.DurationVar(&cfg.Worker.SchemaTTL, "schema-ttl", cfg.Worker.SchemaTTL, "Published schema TTL")

	return fs, &cfg
}

// runServe starts a bus client on a loaded configuration and blocks until
// an interrupt or terminate signal is received, then drains and stops.
// Exit codes: 0 normal stop (SIGTERM), 1 configuration error, 2 transport
// failure at startup or errors during shutdown, 130 on interrupt (SIGINT).
func runServe(args []string) int {
	fs, cfg := newFlagSet("run")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	logger.Printf("lightbus %s starting (redis=%s prefix=%s)", version, cfg.Transport.RedisAddr, cfg.Transport.KeyPrefix)

	client, err := lightbus.New(*cfg, lightbus.WithLogger(logger))
	if err != nil {
		logger.Printf("FATAL: building client: %v", err)
		return 1
	}
	lightbus.SetDefault(client)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	interrupted := make(chan bool, 1)
	go func() {
		sig := <-sigCh
		interrupted <- sig == os.Interrupt
		stop()
	}()

	if err := client.Start(ctx); err != nil {
		logger.Printf("FATAL: starting client: %v", err)
		return 2
	}
	logger.Printf("INFO: lightbus ready")

	err = lifecycle.AwaitShutdown(ctx, cfg.Worker.GracefulShutdownTimeout, logger, func(cleanupCtx context.Context) error {
		return client.Stop(cleanupCtx)
	})

	if err != nil {
		logger.Printf("ERROR: shutdown errors: %v", err)
		return 2
	}
	if <-interrupted {
		return 130
	}
	return 0
}

// runInspect lists the transport/worker configuration a "run" invocation
// with the same flags would use. Listing user-registered APIs requires the
// embedding program that calls RegisterAPI before Start, which this
// contract stub does not do.
func runInspect(args []string) int {
	fs, cfg := newFlagSet("inspect")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// runShell is part of the CLI surface; an interactive client shell needs
// a line-editing REPL loop this contract stub does not embed.
func runShell(args []string) int {
	fmt.Fprintln(os.Stderr, "lightbus shell: interactive REPL is not implemented by this stub binary")
	return 1
}

// configSchemaDoc is a minimal JSON-Schema-shaped description of
// config.Config, enough to satisfy the dumpconfigschema contract without
// pulling in a reflection-based schema generator the rest of the stack
// never needed.
type configSchemaDoc struct {
	Schema     string                 `json:"$schema"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

func runDumpConfigSchema(args []string) int {
	doc := configSchemaDoc{
		Schema: "http://json-schema.org/draft-07/schema#",
		Type:   "object",
		Properties: map[string]interface{}{
			"transport": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"schema_transport": map[string]string{"type": "string"},
					"rpc_transport":    map[string]string{"type": "string"},
					"result_transport": map[string]string{"type": "string"},
					"event_transport":  map[string]string{"type": "string"},
					"redis_addr":       map[string]string{"type": "string"},
					"redis_password":   map[string]string{"type": "string"},
					"redis_db":         map[string]string{"type": "integer"},
					"key_prefix":       map[string]string{"type": "string"},
				},
			},
			"worker": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"concurrency":               map[string]string{"type": "integer"},
					"acknowledgement_timeout":   map[string]string{"type": "string"},
					"reclaim_interval":          map[string]string{"type": "string"},
					"max_redeliveries":          map[string]string{"type": "integer"},
					"graceful_shutdown_timeout": map[string]string{"type": "string"},
					"schema_ttl":                map[string]string{"type": "string"},
				},
			},
			"apis": map[string]interface{}{
				"type": "object",
				"additionalProperties": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"rpc_timeout":        map[string]string{"type": "string"},
						"event_fire_timeout": map[string]string{"type": "string"},
						"validate":           map[string]string{"type": "string", "enum": "off|incoming|outgoing|both"},
						"cast_values":        map[string]string{"type": "boolean"},
					},
				},
			},
		},
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
