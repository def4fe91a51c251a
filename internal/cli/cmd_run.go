package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/quickfixgo/quickfix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/koltyakov/fixinit/internal/config"
	"github.com/koltyakov/fixinit/internal/debughttp"
	"github.com/koltyakov/fixinit/internal/fixmsg"
	"github.com/koltyakov/fixinit/internal/initiator"
	"github.com/koltyakov/fixinit/internal/lifecycle"
	ilog "github.com/koltyakov/fixinit/internal/log"
	"github.com/koltyakov/fixinit/internal/relay"
	"github.com/koltyakov/fixinit/internal/routing"
	"github.com/koltyakov/fixinit/internal/store/sqlite"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the initiator and route inbound messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), opts.configPath)
			if err != nil {
				return err
			}
			logger := ilog.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)
			return runInitiator(cmd.Context(), cfg, logger)
		},
	}
}

func loadEngineSettings(path string) (*quickfix.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fix settings: %w", err)
	}
	defer f.Close()
	settings, err := quickfix.ParseSettings(f)
	if err != nil {
		return nil, fmt.Errorf("parse fix settings %s: %w", path, err)
	}
	return settings, nil
}

func runInitiator(ctx context.Context, cfg config.Config, logger *slog.Logger) (err error) {
	settings, err := loadEngineSettings(cfg.FIX.SettingsPath)
	if err != nil {
		return err
	}

	source := initiator.WithOverrides(initiator.FromEngineSettings(settings), initiator.Credentials{
		Username:    cfg.Credentials.Username,
		Password:    cfg.Credentials.Password,
		NewPassword: cfg.Credentials.NewPassword,
	})
	client := initiator.New(source, logger)
	defer func() { err = errors.Join(err, client.Close()) }()
	client.SetSendRateLimit(cfg.Send.RateLimit, cfg.Send.Burst)

	engine, err := initiator.NewEngine(client, settings, logger)
	if err != nil {
		return err
	}
	starter := initiator.NewStarter(engine, logger, cfg.FIX.Name)
	client.BindEngine(starter)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := routing.NewMetrics(reg)
	if err != nil {
		return err
	}

	routerID := cfg.FIX.Name
	handlers := routing.NewRegistry()
	if err := handlers.Add(routing.Generic("log", logHandler(logger))); err != nil {
		return err
	}

	group := lifecycle.NewGroup(logger)
	if cfg.Debug.PprofListen != "" {
		group.Add(debughttp.NewPprofServer(cfg.Debug.PprofListen, logger))
	}

	if cfg.Journal.Path != "" {
		journal, err := sqlite.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
		if err := handlers.Add(routing.Generic("journal", sqlite.Handler(journal, routerID))); err != nil {
			return err
		}
	}

	if cfg.Relay.Listen != "" {
		feed := relay.New(relay.Config{
			Listen:       cfg.Relay.Listen,
			ACMEDomain:   cfg.Relay.ACMEDomain,
			CertCacheDir: cfg.Relay.CertCacheDir,
			Token:        cfg.Relay.Token,
			Gatherer:     reg,
		}, logger)
		if err := handlers.Add(routing.Generic("relay", feed.Handler(routerID))); err != nil {
			return err
		}
		group.Add(feed)
	}

	router := routing.NewRouter(routerID, client, handlers, logger)
	router.SetMetrics(metrics)
	group.Add(router)
	group.Add(starter)

	return group.Run(ctx)
}

func logHandler(logger *slog.Logger) routing.Handler {
	return routing.HandlerFunc(func(_ context.Context, msg *quickfix.Message) error {
		logger.Info("fix message received", "msg_type", fixmsg.MsgType(msg), "session", fixmsg.SessionKey(msg))
		return nil
	})
}
