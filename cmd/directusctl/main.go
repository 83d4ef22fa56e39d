// directusctl is a command-line client for the Directus API.
//
// Usage:
//
//	directusctl [--config path] [--log-level level] <command> [args]
//
// Environment:
//
//	DIRECTUS_URL, DIRECTUS_TOKEN, DIRECTUS_EMAIL, DIRECTUS_PASSWORD,
//	DIRECTUS_REDIS_ADDR, DIRECTUS_INSECURE override the config file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/reise69/directus-go-sdk/pkg/cache"
	"github.com/reise69/directus-go-sdk/pkg/directus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	logLevel   string
	cfg        *Config
	logOut     io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{logOut: os.Stderr}

	root := &cobra.Command{
		Use:           "directusctl",
		Short:         "Directus CMS command-line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			a.cfg = cfg
			return setupLogging(cfg.Log, a.logOut)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to directusctl.yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		a.convertCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.collectionsCmd(),
		a.duplicateCmd(),
		a.itemsCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.uploadCmd(),
		a.downloadCmd(),
		a.deleteAllCmd(),
	)
	return root
}

func setupLogging(cfg LogConfig, w io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch cfg.Format {
	case "json":
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	case "console", "":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	default:
		return fmt.Errorf("log format %q: want console or json", cfg.Format)
	}
	return nil
}

// session is a client plus whatever must be released or saved after use.
type session struct {
	*directus.Client
	store     *cache.RedisCache
	persisted bool
}

// connect builds a client from the config and authenticates it with, in
// order: a static token, the saved login session, or email and password.
func (a *app) connect(ctx context.Context) (*session, error) {
	d := a.cfg.Directus
	if d.URL == "" {
		return nil, fmt.Errorf("directus url is not configured (set directus.url or DIRECTUS_URL)")
	}

	opts := []directus.Option{
		directus.WithLogger(log.Logger),
		directus.WithTimeout(d.Timeout),
	}
	if d.InsecureSkipVerify {
		opts = append(opts, directus.WithInsecureSkipVerify())
	}
	if d.RateLimit > 0 {
		opts = append(opts, directus.WithRateLimit(d.RateLimit, d.RateBurst))
	}
	if a.cfg.Retry.Enabled {
		opts = append(opts, directus.WithRetry(a.cfg.Retry))
	}
	if a.cfg.Breaker.Enabled {
		opts = append(opts, directus.WithCircuitBreaker(a.cfg.Breaker))
	}

	s := &session{}
	if a.cfg.Cache.Enabled {
		store, err := cache.Open(ctx, a.cfg.Cache.Config)
		if err != nil {
			return nil, err
		}
		s.store = store
		opts = append(opts, directus.WithCache(store))
	}

	c, err := directus.New(d.URL, opts...)
	if err != nil {
		s.close()
		return nil, err
	}
	s.Client = c

	switch {
	case d.Token != "":
		c.SetToken(d.Token)
	default:
		tokens, ok, err := loadSession(d.SessionFile, d.URL)
		if err != nil {
			s.close()
			return nil, err
		}
		switch {
		case ok:
			c.Resume(tokens)
			s.persisted = true
		case d.Email != "" && d.Password != "":
			if _, err := c.Login(ctx, d.Email, d.Password); err != nil {
				s.close()
				return nil, err
			}
		}
	}
	return s, nil
}

// run connects, calls fn and writes back a rotated login session.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, c *directus.Client) error) error {
	ctx := cmd.Context()
	s, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	runErr := fn(ctx, s.Client)
	if s.persisted {
		if err := saveSession(a.cfg.Directus.SessionFile, a.cfg.Directus.URL, s.Session()); err != nil {
			log.Warn().Err(err).Msg("could not save session")
		}
	}
	return runErr
}

func (s *session) close() {
	if s.Client != nil {
		if err := s.Client.Close(); err != nil {
			log.Warn().Err(err).Msg("close client")
		}
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}
