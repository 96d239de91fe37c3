package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/cova/internal/chat"
	"github.com/markdave123-py/cova/internal/covaclient"
)

const moreCommand = "/more"

func newNewCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "new [question]",
		Short: "Start a new conversation",
		Long:  "Starts a conversation with the given question. Without one, the suggested questions are shown and the first line typed starts the conversation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.authedClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			reader := bufio.NewReader(cmd.InOrStdin())

			question := strings.Join(args, " ")
			if strings.TrimSpace(question) == "" {
				tenant, err := client.Tenant(ctx)
				if err != nil {
					return fmt.Errorf("load tenant: %w", err)
				}
				printWelcome(out, tenant)
				fmt.Fprint(out, "> ")
				line, err := reader.ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				question = pickQuestion(strings.TrimSpace(line), chat.SuggestedQuestions(tenant))
			}

			handoff, err := chat.NewWelcome(client).Start(ctx, question)
			if err != nil {
				return err
			}
			log.WithField("conversation", handoff.ConversationID).Info("conversation created")
			fmt.Fprintf(out, "Conversation %s\n", handoff.ConversationID)
			return runChat(ctx, client, handoff.ConversationID, handoff.InitialMessage, reader, out)
		},
	}
}

func newChatCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Reopen a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.authedClient()
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), client, args[0], "", bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
		},
	}
}

// pickQuestion maps "1".."3" to the matching suggestion.
func pickQuestion(line string, suggestions []string) string {
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(suggestions) {
		return suggestions[n-1]
	}
	return line
}

func runChat(ctx context.Context, client *covaclient.Client, conversationID, seed string, in io.Reader, out io.Writer) error {
	r := newRenderer(out)
	conv := chat.NewConversation(conversationID, client, client, covaclient.GeneratePath, chat.WithOnChange(r.Render))
	fmt.Fprintf(out, "Type a question, %s for a longer answer, /quit to leave.\n", moreCommand)
	return repl(ctx, conv, seed, in, r)
}

// repl feeds lines from in to conv until /quit is typed or the
// conversation stops. Once in is exhausted it waits for the answer in
// flight before returning.
func repl(ctx context.Context, conv *chat.Conversation, seed string, in io.Reader, r *renderer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- conv.Run(ctx, seed) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() error {
		cancel()
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	idle := time.NewTicker(50 * time.Millisecond)
	defer idle.Stop()
	draining := false

	for {
		select {
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-idle.C:
			if draining && r.Published() {
				if snap := conv.Snapshot(); !snap.Loading && !snap.History {
					return stop()
				}
			}
		case line, ok := <-lines:
			if !ok {
				lines, draining = nil, true
				continue
			}
			var err error
			switch line = strings.TrimSpace(line); line {
			case "":
				continue
			case "/quit", "/exit":
				return stop()
			case moreCommand:
				err = conv.TellMeMore(ctx)
			default:
				err = conv.Submit(ctx, line)
			}
			switch {
			case err == nil, errors.Is(err, chat.ErrClosed):
			case errors.Is(err, chat.ErrSessionBusy):
				r.Notice("Cova is still answering, please wait.")
			case errors.Is(err, chat.ErrNothingToExpand):
				r.Notice("There is no answer to expand yet.")
			default:
				r.Notice("Could not send: " + err.Error())
			}
		}
	}
}
