package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "memory",
		Usage:     "Show the consolidated memory of a conversation",
		ArgsUsage: "<conversation-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("conversation-id argument is required")
			}
			conversationID := model.ConversationID(c.Args().First())

			repo, err := cfg.newRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			view, err := repo.GetMemory(ctx, conversationID)
			if err != nil {
				return err
			}
			if view.Summary == nil {
				fmt.Println("no memory consolidated yet")
				return nil
			}

			fmt.Printf("summary: %s\n", view.Summary.SummaryText)
			fmt.Printf("keywords: %s\n", strings.Join(view.Summary.Keywords, ", "))
			fmt.Printf("themes: %s\n", strings.Join(view.Summary.Themes, ", "))
			fmt.Printf("span: %s .. %s\n",
				view.Summary.StartTime.Format("2006-01-02 15:04"),
				view.Summary.EndTime.Format("2006-01-02 15:04"))

			fmt.Printf("\ntriples (%d):\n", len(view.Triples))
			for _, tv := range view.Triples {
				object := tv.ObjectName
				if object == "" {
					object = "-"
				}
				line := fmt.Sprintf("  %s --%s--> %s", tv.SubjectName, tv.Triple.RelationType, object)
				if tv.Triple.RelationText != "" {
					line += fmt.Sprintf("  (%s)", tv.Triple.RelationText)
				}
				fmt.Println(line)
			}

			fmt.Printf("\nevidence chunks: %d\n", len(view.Chunks))
			return nil
		},
	}
}
