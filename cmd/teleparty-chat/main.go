package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/app"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/config"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/log"
	"github.com/saurabh-singh-9090/teleparty-chat-app/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
		nickname   string
		logLevel   string
		statePath  string
	)

	cmd := &cobra.Command{
		Use:   "teleparty-chat",
		Short: "Terminal client for Teleparty-style chat rooms",
		Long: `teleparty-chat connects to a chat server, keeps the session alive across
network drops and resumes the previous room on restart.

Once connected:
  /nick <name>    pick a nickname
  /create         create a room
  /join <room>    join an existing room
  /who            list typing users
  /signout        leave and forget the session
  /quit           exit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootstrap := log.New("info")
			cfg, usedPath, err := config.Load(bootstrap, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// Flags beat file and environment values.
			if cmd.Flags().Changed("server-url") {
				cfg.ServerURL = serverURL
			}
			if cmd.Flags().Changed("nickname") {
				cfg.Nickname = nickname
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("state-path") {
				cfg.StatePath = statePath
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", usedPath).Str("server_url", cfg.ServerURL).Msg("starting chat client")

			return run(cmd.Context(), &cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "chat server websocket URL")
	cmd.Flags().StringVar(&nickname, "nickname", "", "nickname to chat under")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (trace..error)")
	cmd.Flags().StringVar(&statePath, "state-path", "", "session record database path (empty = in-memory)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cobra.OnFinalize(stop)
	cmd.SetContext(ctx)

	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	sessions := application.Sessions()
	sessions.SetListener(&consoleListener{})

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	return inputLoop(ctx, sessions, cfg.Nickname, cfg.UserIcon)
}

// inputLoop reads commands and chat lines from stdin until EOF, /quit or
// context cancellation.
func inputLoop(ctx context.Context, sessions *session.SessionStore, nickname, icon string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, sessions, &nickname, icon, line)
			if err != nil {
				fmt.Printf("! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, sessions *session.SessionStore, nickname *string, icon, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if !strings.HasPrefix(line, "/") {
		if err := sessions.SetTyping(ctx, true); err != nil {
			return false, err
		}
		return false, sessions.SendMessage(ctx, line)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/nick":
		if rest == "" {
			return false, fmt.Errorf("usage: /nick <name>")
		}
		*nickname = rest
		fmt.Printf("* nickname set to %s\n", rest)
		return false, nil

	case "/create":
		roomID, err := sessions.CreateRoom(ctx, *nickname, icon)
		if err != nil {
			return false, err
		}
		fmt.Printf("* room created: %s (share this id)\n", roomID)
		return false, nil

	case "/join":
		if rest == "" {
			return false, fmt.Errorf("usage: /join <room>")
		}
		if err := sessions.JoinRoom(ctx, *nickname, rest, icon); err != nil {
			return false, err
		}
		printHistory(sessions.Messages())
		return false, nil

	case "/who":
		typing := sessions.TypingNicknames()
		if len(typing) == 0 {
			fmt.Println("* nobody is typing")
		} else {
			fmt.Printf("* typing: %s\n", strings.Join(typing, ", "))
		}
		return false, nil

	case "/signout":
		if err := sessions.SignOut(ctx); err != nil {
			return false, err
		}
		fmt.Println("* signed out")
		return false, nil

	case "/quit":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}

func printHistory(messages []session.Message) {
	for _, msg := range messages {
		printMessage(msg)
	}
}

func printMessage(msg session.Message) {
	when := msg.Timestamp
	if when.IsZero() {
		when = time.Now()
	}
	stamp := when.Format("15:04:05")
	if msg.IsSystemMessage {
		fmt.Printf("[%s] * %s\n", stamp, msg.Body)
		return
	}
	fmt.Printf("[%s] <%s> %s\n", stamp, msg.UserNickname, msg.Body)
}

// consoleListener renders session callbacks on stdout.
type consoleListener struct{}

func (l *consoleListener) MessageAppended(msg session.Message) {
	printMessage(msg)
}

func (l *consoleListener) StatusChanged(status session.Status) {
	fmt.Printf("* connection: %s\n", status)
}

func (l *consoleListener) Notice(text string) {
	fmt.Printf("* %s\n", text)
}
