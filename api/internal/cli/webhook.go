package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infrakt/infrakt/api/internal/api/handlers"
	"github.com/infrakt/infrakt/api/internal/core/domain"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage outbound event notifications",
}

func init() {
	rootCmd.AddCommand(webhookCmd)

	addCmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a webhook receiver",
		Args:  cobra.ExactArgs(1),
		RunE:  runWebhookAdd,
	}
	addCmd.Flags().StringSlice("event", nil, "event to subscribe to, repeatable (deploy.started, deploy.succeeded, deploy.failed, app.stopped, app.restarted)")
	addCmd.Flags().String("secret", "", "HMAC signing secret, at least 16 characters (required)")
	_ = addCmd.MarkFlagRequired("secret")
	webhookCmd.AddCommand(addCmd)

	webhookCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered webhooks",
		RunE:  runWebhookList,
	})

	rmCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a webhook by its numeric id",
		Args:  cobra.ExactArgs(1),
		RunE:  runWebhookRemove,
	}
	webhookCmd.AddCommand(rmCmd)

	testCmd := &cobra.Command{
		Use:   "test <id>",
		Short: "Send a signed synthetic event to a webhook",
		Args:  cobra.ExactArgs(1),
		RunE:  runWebhookTest,
	}
	webhookCmd.AddCommand(testCmd)
}

func runWebhookAdd(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	events, _ := cmd.Flags().GetStringSlice("event")
	if len(events) == 0 {
		events = []string{"deploy.succeeded", "deploy.failed"}
	}
	secret, _ := cmd.Flags().GetString("secret")
	req := handlers.CreateWebhookRequest{URL: args[0], Events: events, Secret: secret}
	var sub domain.WebhookSubscription
	if err := c.do("POST", "/api/v1/webhooks", req, &sub); err != nil {
		return err
	}
	printJSON(sub)
	return nil
}

func runWebhookList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var subs []*domain.WebhookSubscription
	if err := c.do("GET", "/api/v1/webhooks", nil, &subs); err != nil {
		return err
	}
	printJSON(subs)
	return nil
}

func runWebhookRemove(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.do("DELETE", fmt.Sprintf("/api/v1/webhooks/%s", args[0]), nil, nil); err != nil {
		return err
	}
	fmt.Printf("Webhook %s removed\n", args[0])
	return nil
}

func runWebhookTest(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var resp map[string]any
	if err := c.do("POST", fmt.Sprintf("/api/v1/webhooks/%s/test", args[0]), nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}
