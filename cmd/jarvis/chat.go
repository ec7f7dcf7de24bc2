package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/jarvis/jarvis/config"
	"github.com/ZanzyTHEbar/jarvis/jarvis/generation/harness"
	"github.com/ZanzyTHEbar/jarvis/jarvis/memory/service"
)

var (
	chatMessage string
	chatAttach  []string
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant",
		Long: `Start an interactive conversation, or send a single message with --message.

Examples:
  jarvis chat
  jarvis chat -m "learn about photosynthesis"
  jarvis chat -m "summarize this" --attach notes.txt`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}

	cmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message and exit")
	cmd.Flags().StringSliceVar(&chatAttach, "attach", nil, "text files appended to the message as context")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher, err := a.factory.CreateDispatcher(ctx)
	if err != nil {
		return err
	}

	annotations, err := readAttachments(chatAttach)
	if err != nil {
		return err
	}

	sess := dispatcher.NewSession(ctx, a.factory.SessionOptions())
	out := cmd.OutOrStdout()

	if chatMessage != "" {
		return chatTurn(ctx, out, dispatcher, sess, a.cfg.Assistant, chatMessage, annotations)
	}

	// Reloaded assistant settings apply between turns.
	reloads := make(chan config.AssistantConfig, 1)
	config.WatchConfig(a.logger, func(ac config.AssistantConfig) {
		select {
		case reloads <- ac:
		default:
		}
	})

	assistant := a.cfg.Assistant
	fmt.Fprintf(out, "%s online. Type 'exit' to quit.\n", assistant.Name)

	lines := make(chan string)
	go scanLines(cmd.InOrStdin(), lines)

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			select {
			case ac := <-reloads:
				assistant = ac
				dispatcher.Policy().AssistantName = ac.Name
			default:
			}

			line = strings.TrimSpace(line)
			if line == "exit" || line == "quit" {
				return nil
			}
			if err := chatTurn(ctx, out, dispatcher, sess, assistant, line, annotations); err != nil {
				return err
			}
			annotations = nil
		}
	}
}

func chatTurn(ctx context.Context, out io.Writer, d *harness.Dispatcher, sess *service.Session, ac config.AssistantConfig, message string, annotations []string) error {
	resp, err := d.Handle(ctx, sess, harness.Request{
		Message:     message,
		Annotations: annotations,
		External:    externalContext(ac, time.Now()),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Reply)
	return nil
}

// externalContext computes the time facts for ac's timezone. Unknown zones fall back to local time.
func externalContext(ac config.AssistantConfig, now time.Time) harness.ExternalContext {
	zone := ac.Timezone
	if zone != "" {
		if loc, err := time.LoadLocation(zone); err == nil {
			now = now.In(loc)
		} else {
			zone = ""
		}
	}
	if zone == "" {
		zone = now.Location().String()
	}

	return harness.ExternalContext{
		AssistantName: ac.Name,
		Now:           now.Format("Monday, January 02 2006 at 03:04 PM"),
		Timezone:      zone,
		Greeting:      greeting(now.Hour()),
	}
}

func greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning"
	case hour >= 12 && hour < 17:
		return "Good afternoon"
	case hour >= 17 && hour < 21:
		return "Good evening"
	default:
		return "Good night"
	}
}

func readAttachments(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		out = append(out, fmt.Sprintf("[Attached file %s]\n%s", p, data))
	}
	return out, nil
}

func scanLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
