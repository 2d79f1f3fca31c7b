package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chatclient/models"
	"chatclient/services"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive chat (the default command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd.Context())
	},
}

const shellHelp = `Type a message and press enter to send it to the open conversation.
  /new [title]     start a conversation
  /list            show conversations
  /open <n|id>     open a conversation by list number or id
  /rename <title>  rename the open conversation
  /delete          delete the open conversation
  /quit            leave`

func runShell(ctx context.Context) error {
	app, err := newApp(true)
	if err != nil {
		return err
	}
	defer app.Close()

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	historyDir := os.TempDir()
	if p := app.Tokens.Path(); p != "" {
		historyDir = filepath.Dir(p)
	}
	historyFile := filepath.Join(historyDir, "shell_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
		line.Close()
	}()

	r := &renderer{}
	app.Feed.OnChange(r.render)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := app.Directory.Watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("conversation list stream ended", zap.Error(err))
		}
	}()

	convs, err := app.Directory.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s. /help for commands.\n", app.Session.User().Email)
	printConversations(convs, app.Directory.Selected())

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		if !strings.HasPrefix(input, "/") {
			app.Composer.SetDraft(input)
			if app.Composer.Submit(ctx) == services.OutcomeSkipped {
				fmt.Println("No conversation open: /new to start one.")
			}
			continue
		}
		if quit := runSlash(ctx, app, input); quit {
			return nil
		}
	}
}

// runSlash executes one slash command and reports whether the shell should exit.
func runSlash(ctx context.Context, app *services.Client, input string) bool {
	fields := strings.Fields(input)
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))

	var err error
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(shellHelp)
	case "/list":
		printConversations(app.Directory.Conversations(), app.Directory.Selected())
	case "/new":
		_, err = app.Directory.Create(ctx, arg)
	case "/open":
		id := resolveConversation(app.Directory.Conversations(), arg)
		if id == "" {
			fmt.Println("No such conversation.")
			break
		}
		app.Directory.Select(id)
	case "/rename":
		if sel := app.Directory.Selected(); sel != "" {
			err = app.Directory.Rename(ctx, sel, arg)
		}
	case "/delete":
		if sel := app.Directory.Selected(); sel != "" {
			err = app.Directory.Delete(ctx, sel)
		}
	default:
		fmt.Println("Unknown command. /help lists them.")
	}
	if err != nil {
		fmt.Println("error:", err)
	}
	return false
}

// resolveConversation accepts a 1-based list position or an id.
func resolveConversation(convs []models.Conversation, arg string) string {
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(convs) {
		return convs[n-1].ID
	}
	for _, c := range convs {
		if c.ID == arg {
			return c.ID
		}
	}
	return ""
}

// renderer prints each message of the open conversation once.
type renderer struct {
	mu      sync.Mutex
	convID  string
	printed map[string]bool
	state   services.FeedState
}

func (r *renderer) render(v services.FeedView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.ConversationID != r.convID {
		r.convID = v.ConversationID
		r.printed = make(map[string]bool)
		r.state = services.FeedIdle
		if v.ConversationID != "" {
			fmt.Printf("-- conversation %s --\n", v.ConversationID)
		}
	}
	if v.State != r.state {
		r.state = v.State
		switch v.State {
		case services.FeedEmpty:
			fmt.Println("No messages yet.")
		case services.FeedError:
			fmt.Println("Could not load messages:", v.Err)
		}
	}
	for _, m := range v.Messages {
		// the user's own optimistic copy was just typed
		if r.printed[m.ID] || (m.Local && !m.FromBot) {
			continue
		}
		r.printed[m.ID] = true
		printMessage(m)
	}
}

func printConversations(convs []models.Conversation, selected string) {
	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		return
	}
	for i, c := range convs {
		mark := " "
		if c.ID == selected {
			mark = "*"
		}
		fmt.Printf("%s %2d. %-30s %3d msgs  %s  %s\n", mark, i+1, c.Title, c.MessageCount,
			c.UpdatedAt.Local().Format("Jan 2 15:04"), c.ID)
	}
}

func printMessage(m models.Message) {
	who := "you"
	if m.FromBot {
		who = "bot"
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content)
}
