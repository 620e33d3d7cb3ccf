package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg            config
		conversationID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "conversation-id",
			Aliases:     []string{"c"},
			Usage:       "Conversation ID to continue (omit to start a new one)",
			Sources:     cli.EnvVars("RECALL_CONVERSATION_ID"),
			Destination: &conversationID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat with memory consolidation after each turn",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			session, err := chat.New(ctx, chat.NewInput{
				Repo:           repo,
				Gemini:         gemini,
				Memory:         cfg.newMemory(repo, gemini),
				ConversationID: model.ConversationID(conversationID),
			})
			if err != nil {
				return goerr.Wrap(err, "failed to open chat session")
			}

			fmt.Printf("conversation: %s (exit with /quit)\n", session.Conversation().ID)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					break
				}

				reply, err := session.Send(ctx, line)
				if err != nil {
					return goerr.Wrap(err, "chat turn failed")
				}
				fmt.Println(reply)
			}

			return scanner.Err()
		},
	}
}
