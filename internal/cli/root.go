// Package cli implements the fittrack command line client.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/spf13/cobra"

	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/gateway"
	"example.com/fittrack/internal/pubsub"
	"example.com/fittrack/internal/storage"
	"example.com/fittrack/internal/tracker"
)

// Flags are the persistent flags shared by every command.
type Flags struct {
	ConfigFile string
	JSON       bool
	Verbose    bool
}

// app is the per-invocation runtime built before a command runs.
type app struct {
	flags   Flags
	cfg     *config.ClientConfig
	store   *storage.Store
	bus     *pubsub.Bus
	gw      *gateway.Gateway
	tracker *tracker.Tracker
	out     io.Writer
	errOut  io.Writer

	unsubscribe func()
}

// NewRootCmd creates the root command for the fittrack CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "fittrack",
		Short: "Track workouts online and offline",
		Long: `fittrack records workouts against the fittrack API.

When the server cannot be reached, reads are answered from the local cache
and new workouts are queued on this device. Queued workouts are sent in the
order they were recorded once the connection returns ("fittrack sync" or
"fittrack watch").`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.flags.ConfigFile, "config", "c", "", "config file path (default: ~/.config/fittrack/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.flags.JSON, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&a.flags.Verbose, "verbose", "v", false, "log cache, gateway and replay activity")

	rootCmd.AddCommand(newWorkoutsCmd(a))
	rootCmd.AddCommand(newStatsCmd(a))
	rootCmd.AddCommand(newSyncCmd(a))
	rootCmd.AddCommand(newQueueCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newHealthCmd(a))
	rootCmd.AddCommand(newSettingsCmd(a))
	rootCmd.AddCommand(newProgressCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(newFavoritesCmd(a))
	rootCmd.AddCommand(newTemplatesCmd(a))
	rootCmd.AddCommand(newExportCmd(a))
	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newCacheCmd(a))

	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadClient(a.flags.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	// watch writes from the monitor and the replay goroutine.
	var mu sync.Mutex
	a.out = &lockedWriter{mu: &mu, w: cmd.OutOrStdout()}
	a.errOut = &lockedWriter{mu: &mu, w: cmd.ErrOrStderr()}

	logOut := io.Discard
	if a.flags.Verbose {
		logOut = a.errOut
	}

	backend := openBackend(cfg.Storage, log.New(a.errOut, "[storage] ", 0))
	a.store = storage.New(backend,
		storage.WithNamespace(cfg.Storage.Namespace),
		storage.WithLogger(log.New(logOut, "[storage] ", log.LstdFlags)),
	)

	a.bus = pubsub.New()
	a.unsubscribe = a.bus.Subscribe(func(e pubsub.Event) {
		fmt.Fprintf(a.errOut, "[%s] %s\n", e.Level, e.Message)
	})

	a.gw = gateway.New(cfg.ServerURL, a.store,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeoutDuration()}),
		gateway.WithCacheTTL(cfg.CacheTTLDuration()),
		gateway.WithLogger(log.New(logOut, "[gateway] ", log.LstdFlags)),
	)
	a.tracker = tracker.New(a.gw, a.store, a.bus,
		tracker.WithLogger(log.New(logOut, "[tracker] ", log.LstdFlags)),
	)
	return nil
}

func (a *app) close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// openBackend selects the configured backend. A backend that cannot be
// opened is reported and replaced by memory, like any other storage failure.
func openBackend(cfg config.StorageConfig, warn *log.Logger) storage.Backend {
	var (
		backend storage.Backend
		err     error
	)
	switch cfg.Backend {
	case config.StorageSQLite:
		backend, err = storage.NewSQLiteBackend(cfg.SQLitePath)
	case config.StorageRedis:
		backend, err = storage.NewRedisBackend(cfg.RedisURL)
	default:
		return storage.NewMemoryBackend()
	}
	if err != nil {
		warn.Printf("%s storage unavailable, continuing in memory: %v", cfg.Backend, err)
		return storage.NewMemoryBackend()
	}
	return backend
}

// describeErr turns client errors into the messages shown to the user.
func describeErr(err error) error {
	var remote *gateway.RemoteError
	switch {
	case errors.Is(err, gateway.ErrNetworkUnavailable):
		return errors.New("the server cannot be reached; try again when online")
	case errors.As(err, &remote):
		return fmt.Errorf("server rejected the request: %s", remote.Message)
	default:
		return err
	}
}
