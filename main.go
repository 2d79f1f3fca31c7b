package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"chatclient/config"
	"chatclient/services"
)

var (
	verbose     bool
	backendFlag string
	graphqlURL  string
	authURL     string
	password    string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatclient",
	Short: "Chat with the bot from your terminal",
	Long: `chatclient signs in to the chat service, manages your conversations and
exchanges messages with the bot. Replies stream in live over a GraphQL
subscription.

Set CHAT_BACKEND=mock (or --backend mock) to run without a server. The mock
keeps conversations in memory for a single process, so use it with the
interactive shell; commands that take a conversation id refuse it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd.Context())
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Sign in with email and password",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd.Context(), args, false)
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup [email]",
	Short: "Create an account and sign in",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd.Context(), args, true)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(false)
		if err != nil {
			return err
		}
		defer app.Close()
		app.Session.SignOut()
		fmt.Println("Signed out.")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()
		convs, err := app.Directory.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		printConversations(convs, app.Directory.Selected())
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Start a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()
		id, err := app.Directory.Create(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <conversation-id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	PreRunE: rejectMockBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.Directory.Rename(cmd.Context(), args[0], strings.Join(args[1:], " "))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	PreRunE: rejectMockBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.Directory.Delete(cmd.Context(), args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Print the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	PreRunE: rejectMockBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()
		msgs, err := app.Backend.LoadHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No messages yet.")
		}
		for _, m := range msgs {
			printMessage(m)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a message to the bot",
	Args:  cobra.MinimumNArgs(2),
	PreRunE: rejectMockBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()
		text := strings.Join(args[1:], " ")
		switch app.Composer.Send(cmd.Context(), args[0], text) {
		case services.OutcomeSkipped:
			fmt.Println("Nothing to send.")
		case services.OutcomeFallback:
			fmt.Println("bot: " + services.FallbackReply(text))
		default:
			fmt.Println("Sent.")
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <conversation-id>",
	Short: "Follow a conversation live until interrupted",
	Args:  cobra.ExactArgs(1),
	PreRunE: rejectMockBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(true)
		if err != nil {
			return err
		}
		defer app.Close()

		r := &renderer{}
		app.Feed.OnChange(r.render)
		app.Directory.Select(args[0])

		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "real or mock (overrides CHAT_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&graphqlURL, "graphql-url", "", "GraphQL endpoint (overrides CHAT_GRAPHQL_URL)")
	rootCmd.PersistentFlags().StringVar(&authURL, "auth-url", "", "Auth endpoint (overrides CHAT_AUTH_URL)")
	loginCmd.Flags().StringVar(&password, "password", "", "Password (prompted when empty)")
	signupCmd.Flags().StringVar(&password, "password", "", "Password (prompted when empty)")

	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, listCmd, newCmd, renameCmd,
		deleteCmd, historyCmd, sendCmd, watchCmd, shellCmd)
}

// newApp builds the client from configuration and resumes the stored
// session. requireAuth fails when nobody is signed in.
func newApp(requireAuth bool) (*services.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	app := services.NewClient(cfg, logger)
	ok, err := app.Session.Restore()
	if err != nil {
		logger.Warn("restore session", zap.Error(err))
	}
	if requireAuth && !ok {
		app.Close()
		return nil, errors.New("not signed in: run `chatclient login` first")
	}
	return app, nil
}

var errMockEphemeral = errors.New("the mock backend keeps no state between commands: use `chatclient shell --backend mock`")

// rejectMockBackend guards commands that address a conversation created by
// an earlier process.
func rejectMockBackend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Backend == config.BackendMock {
		return errMockEphemeral
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if backendFlag != "" {
		cfg.Backend = strings.ToLower(backendFlag)
	}
	if graphqlURL != "" {
		cfg.GraphQLURL = graphqlURL
		cfg.GraphQLWSURL = config.WebSocketURL(graphqlURL)
	}
	if authURL != "" {
		cfg.AuthURL = authURL
	}
	return cfg, cfg.Validate()
}

func authenticate(ctx context.Context, args []string, signUp bool) error {
	app, err := newApp(false)
	if err != nil {
		return err
	}
	defer app.Close()

	email := ""
	if len(args) > 0 {
		email = args[0]
	} else {
		fmt.Print("Email: ")
		if _, err := fmt.Scanln(&email); err != nil {
			return fmt.Errorf("read email: %w", err)
		}
	}
	pw := password
	if pw == "" {
		if pw, err = readPassword(); err != nil {
			return err
		}
	}

	if signUp {
		err = app.Session.SignUp(ctx, email, pw)
	} else {
		err = app.Session.SignIn(ctx, email, pw)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s.\n", app.Session.User().Email)
	return nil
}

func readPassword() (string, error) {
	fmt.Print("Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
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
