package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/hhbot/internal/auth"
	"github.com/example/hhbot/internal/bot"
	"github.com/example/hhbot/internal/cache"
	"github.com/example/hhbot/internal/campaign"
	"github.com/example/hhbot/internal/scheduler"
	"github.com/example/hhbot/internal/telegram"
	"github.com/example/hhbot/internal/web"
)

const (
	dialogTTL     = time.Hour
	shutdownGrace = 15 * time.Second
)

func newServerCmd(opts *rootOptions) *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the Telegram bot, the OAuth callback server and background campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, opts, migrateUp)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cfg.RequireBot(); err != nil {
				return err
			}
			sealer, err := a.sealer()
			if err != nil {
				return err
			}

			tg, err := telegram.New(a.cfg.BotToken, a.log)
			if err != nil {
				return err
			}

			states := auth.NewStateCodec(a.cfg.CookieHashKey, a.cfg.CookieBlockKey, auth.DefaultStateTTL)
			oauth := a.oauth()
			sched := scheduler.New(a.log)

			dialogs := cache.NewMemory[bot.DialogState](dialogTTL)
			defer dialogs.Close()

			b := bot.New(bot.Config{
				Messenger: tg,
				Settings:  a.settings,
				Campaigns: sched,
				Tokens:    sealer,
				NewClient: func(token string) bot.HH { return a.hhClient(token) },
				AuthLink: func(chatID int64) (string, error) {
					state, err := states.Encode(chatID)
					if err != nil {
						return "", err
					}
					return oauth.AuthorizeURL(state), nil
				},
				Dialogs: dialogs,
				History: a.runs,
				Campaign: campaign.Options{
					PageRetries: a.cfg.PageRetries,
					PageBackoff: a.cfg.PageBackoff,
				},
				Location: a.cfg.DisplayTimezone,
				Logger:   a.log,
			})

			ws := &web.Server{
				States:   states,
				OAuth:    oauth,
				Tokens:   sealer,
				Settings: a.settings,
				Notify: func(ctx context.Context, chatID int64) error {
					_, err := tg.Send(ctx, chatID, bot.AuthorizedMessage())
					return err
				},
				Logger: a.log.Named("web"),
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return tg.Run(gctx, b) })
			g.Go(func() error { return web.Start(gctx, a.cfg.ListenAddr, ws.Routes(), a.log) })
			g.Go(func() error { return sched.Run(gctx, shutdownGrace) })

			a.log.Info("server started", zap.String("version", Version))
			err = g.Wait()
			a.log.Info("server stopped", zap.Error(err))
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
