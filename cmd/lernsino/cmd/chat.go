package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nfrund/lernsino/internal/domain"
	"github.com/nfrund/lernsino/internal/multiplayer"
	"github.com/spf13/cobra"
)

var chatName string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the global chat",
	Long: `Join the global chat as --name. Each line read from stdin is sent as a
chat message. While the hub is unreachable, messages go over the local channel.

Commands:
  /stats <json>   push a stats snapshot to the hub, e.g. /stats {"coins":500}
  /quit           leave the chat

Examples:
  lernsino chat --name alice
  lernsino chat --name bob --url ws://localhost:9000/ws`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, _, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Shutdown()

		client, err := a.Client()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runChat(ctx, client, chatName, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatName, "name", "n", "", "display name used to log in (required)")
	chatCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(chatCmd)
}

// session is the part of the transport client the chat loop uses.
type session interface {
	ID() string
	Login(username string)
	SendMessage(msg domain.ChatMessage)
	UpdateState(stats domain.UserStats)
	SubscribeToMessages(func(domain.ChatMessage)) multiplayer.Unsubscribe
	SubscribeToConnection(func(bool)) multiplayer.Unsubscribe
	SubscribeToState(func(domain.UserStats)) multiplayer.Unsubscribe
}

// printer serialises output from listener callbacks and the input loop.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// runChat logs in as name and relays lines from in until EOF, /quit or ctx is done.
func runChat(ctx context.Context, s session, name string, in io.Reader, out io.Writer) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("a non-empty --name is required")
	}
	p := &printer{out: out}

	unsubs := []multiplayer.Unsubscribe{
		s.SubscribeToMessages(func(m domain.ChatMessage) {
			if m.FromSystem() {
				p.printf("* %s\n", m.Text)
				return
			}
			p.printf("[%s] %s: %s\n", m.Time().Format(time.TimeOnly), m.SenderName, m.Text)
		}),
		s.SubscribeToConnection(func(connected bool) {
			if connected {
				p.printf("-- connected to hub\n")
			} else {
				p.printf("-- hub unreachable, retrying\n")
			}
		}),
		s.SubscribeToState(func(stats domain.UserStats) {
			if stats.IsZero() {
				p.printf("-- no saved stats\n")
				return
			}
			p.printf("-- stats: %s\n", stats)
		}),
	}
	defer func() {
		for _, unsubscribe := range unsubs {
			unsubscribe()
		}
	}()

	s.Login(name)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			if quit := handleLine(s, p, name, line); quit {
				return nil
			}
		}
	}
}

// handleLine runs one input line and reports whether the user asked to quit.
func handleLine(s session, p *printer, name, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/stats"):
		raw := strings.TrimSpace(strings.TrimPrefix(line, "/stats"))
		if !json.Valid([]byte(raw)) {
			p.printf("!! /stats needs a JSON value, e.g. /stats {\"coins\":500}\n")
			return false
		}
		s.UpdateState(domain.UserStats(raw))
		return false
	case strings.HasPrefix(line, "/"):
		p.printf("!! unknown command %s\n", strings.Fields(line)[0])
		return false
	default:
		s.SendMessage(domain.NewChatMessage(s.ID(), name, line))
		return false
	}
}
