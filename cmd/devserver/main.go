// Command devserver serves the GraphQL and auth endpoints chatclient talks
// to, for local development and integration runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chatclient/bot"
	"chatclient/config"
	"chatclient/controllers"
	"chatclient/routes"
	"chatclient/store"
)

var (
	addr                string
	botDelay            time.Duration
	requireVerification bool
	debug               bool
)

var rootCmd = &cobra.Command{
	Use:          "devserver",
	Short:        "Local stand-in for the chat GraphQL and auth services",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides DEVSERVER_ADDR)")
	rootCmd.Flags().DurationVar(&botDelay, "bot-delay", 0, "delay before the bot replies")
	rootCmd.Flags().BoolVar(&requireVerification, "require-verification", false, "sign-up returns no session until the email is verified")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode and development logging")
}

func run(ctx context.Context) error {
	log, err := zap.NewProduction()
	if debug {
		gin.SetMode(gin.DebugMode)
		log, err = zap.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.DevServerAddr = addr
	}

	backing, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	s := store.NewNotifying(backing, store.NewHub())

	var replier bot.Replier = bot.EchoReplier{}
	if cfg.OpenAIKey != "" {
		r, err := bot.NewOpenAIReplier(cfg.OpenAIKey, cfg.OpenAIModel)
		if err != nil {
			return err
		}
		replier = r
		log.Info("bot replies via OpenAI", zap.String("model", cfg.OpenAIModel))
	}

	accounts := controllers.NewAccounts()
	accounts.RequireVerification = requireVerification

	router := routes.SetupRouter(routes.Deps{
		Chat: &controllers.ChatController{
			Store:    s,
			Bot:      &bot.Pipeline{Store: s, Replier: replier, Delay: botDelay, Log: log.Named("bot")},
			Accounts: accounts,
			Role:     cfg.Role,
			Log:      log.Named("graphql"),
		},
		Auth: &controllers.AuthController{Accounts: accounts, Log: log.Named("auth")},
		Role: cfg.Role,
		Log:  log.Named("http"),
	})

	srv := &http.Server{Addr: cfg.DevServerAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", cfg.DevServerAddr), zap.String("store", cfg.DevServerStore))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DevServerStore != config.StoreDynamoDB {
		return store.NewMemory(), nil
	}
	client, err := store.NewDynamoClient(ctx, cfg.DynamoEndpoint, cfg.DynamoRegion)
	if err != nil {
		return nil, err
	}
	d := store.NewDynamo(client, log.Named("dynamodb"))
	if err := d.EnsureTables(ctx); err != nil {
		return nil, fmt.Errorf("prepare tables: %w", err)
	}
	return d, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
