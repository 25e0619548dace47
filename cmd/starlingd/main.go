// starlingd – a durable, multi-queue broker that speaks the memcache
// text protocol over TCP.
//
// Usage:
//
//	starlingd [--config <file>] [--host <addr>] [--port <n>] [--path <dir>]
//
// Queues are stored as one append-only log file per name under --path;
// a clean or unclean restart replays those logs to recover exactly the
// items that were durably enqueued and not yet dequeued.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"starling/internal/config"
	"starling/internal/queue"
	"starling/internal/server"
	"starling/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "path to a starlingd.yaml config file")
	host := flag.String("host", "", "bind address (env: STARLING_HOST; overrides config file)")
	port := flag.Int("port", 0, "bind port (env: STARLING_PORT; overrides config file)")
	path := flag.String("path", "", "root directory for queue logs (env: STARLING_PATH; overrides config file)")
	pidFile := flag.String("pid-file", "", "pidfile path when daemonized")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("starlingd: config: %v", err)
	}

	// Flags take precedence over both the file and the environment, since
	// they are the most explicit thing the operator typed.
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *path != "" {
		cfg.Path = *path
	}
	if *pidFile != "" {
		cfg.PIDFile = *pidFile
	}

	if cfg.Daemonize {
		if err := writePIDFile(cfg.PIDFile); err != nil {
			log.Fatalf("starlingd: pidfile: %v", err)
		}
		defer os.Remove(cfg.PIDFile)
	}

	st := stats.New()
	queueStats := stats.New()
	collection, err := queue.NewCollection(cfg.Path, queueStats)
	if err != nil {
		log.Fatalf("starlingd: queue collection: %v", err)
	}

	srv := server.New(cfg.Addr(), collection, st)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("starlingd: received %v, shutting down", sig)
		srv.Stop()
	}()

	log.Printf("starlingd: listening on %s, queues at %s", cfg.Addr(), cfg.Path)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("starlingd: serve: %v", err)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
