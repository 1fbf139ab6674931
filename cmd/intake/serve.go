package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/intake/internal/chat"
	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/dedup"
	"github.com/hurttlocker/intake/internal/dispatch"
	"github.com/hurttlocker/intake/internal/llm"
	"github.com/hurttlocker/intake/internal/metrics"
	"github.com/hurttlocker/intake/internal/pipeline"
	"github.com/hurttlocker/intake/internal/server"
	"github.com/hurttlocker/intake/internal/store"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, origins)
		},
	}
	cmd.Flags().StringVar(&g.listen, "listen", "", "listen address (default :3000)")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origin (repeatable, default *)")
	return cmd
}

func runServe(ctx context.Context, g *globalFlags, origins []string) error {
	s, err := g.settings()
	if err != nil {
		return err
	}
	log, err := newLogger(s)
	if err != nil {
		return err
	}
	defer log.Sync()

	if len(s.Brands) == 0 {
		log.Warn("no brands configured, every chat turn will be rejected")
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: s.DBPath})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	provider, err := llm.NewProvider(llm.Config{
		Provider: s.LLM.Provider,
		Model:    s.LLM.Model,
		APIKey:   s.LLM.APIKey,
		BaseURL:  s.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("creating agent provider: %w", err)
	}

	m := metrics.NewCollector("intake")
	d := newDispatcher(s, st, log, m)

	svc := chat.NewService(chat.Config{
		Provider: provider,
		Pipeline: pipeline.New(dedup.New(s.DedupWindow), d,
			pipeline.WithLogger(log),
			pipeline.WithRecorder(m),
		),
		Store:   st,
		Brands:  s.Brands,
		Logger:  log,
		Metrics: m,
	})

	log.Info("starting intake",
		zap.String("version", version),
		zap.String("provider", provider.Name()),
		zap.String("db", s.DBPath),
		zap.Strings("channels", d.Channels()),
		zap.Int("brands", len(s.Brands)),
	)

	srv := server.New(server.Config{
		Chat:           svc,
		Metrics:        m,
		Logger:         log,
		RatePerMinute:  s.ChatRatePerMinute,
		AllowedOrigins: origins,
	})
	return srv.ListenAndServe(ctx, s.ListenAddr)
}

// newDispatcher registers every configured channel. The store channel is
// always on.
func newDispatcher(s config.Settings, st store.Store, log *zap.Logger, m *metrics.Collector) *dispatch.Dispatcher {
	client := &http.Client{}
	d := dispatch.New(log, m)
	if s.Email.Enabled() {
		d.Add(dispatch.NewEmailChannel(s.Email, client), dispatch.EmailTimeout)
	} else {
		log.Info("email channel disabled", zap.String("reason", "email api key or endpoint not set"))
	}
	if strings.TrimSpace(s.Webhook.URL) != "" {
		d.Add(dispatch.NewWebhookChannel(s.Webhook, client), dispatch.WebhookTimeout)
	}
	d.Add(dispatch.NewStoreChannel(st), dispatch.StoreTimeout)
	return d
}
