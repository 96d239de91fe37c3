package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/cova/internal/chat"
	"github.com/markdave123-py/cova/internal/models"
)

func newQuestionsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "Show the suggested questions of your organisation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.authedClient()
			if err != nil {
				return err
			}
			tenant, err := client.Tenant(cmd.Context())
			if err != nil {
				return fmt.Errorf("load tenant: %w", err)
			}
			printWelcome(cmd.OutOrStdout(), tenant)
			return nil
		},
	}
}

func printWelcome(out io.Writer, tenant *models.Tenant) {
	fmt.Fprintf(out, "[%s] %s\n", chat.Initials(tenant.Name), tenant.Name)
	fmt.Fprintln(out, "Ask Cova anything about your documents, or pick a question:")
	for i, q := range chat.SuggestedQuestions(tenant) {
		fmt.Fprintf(out, "  %d. %s\n", i+1, q)
	}
}
