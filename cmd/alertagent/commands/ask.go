package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"alertagent/internal/agent"
)

func newAskCmd(root *rootOptions) *cobra.Command {
	var (
		profile  string
		approved bool
		list     bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the ops agents a one-shot question",
		Example: `  alertagent ask "which pods of checkout restarted today?"
  alertagent ask --profile db_simple_query "how many users signed up yesterday?"
  alertagent ask --profile k8s_helper --approve "scale web in shop to 3 replicas"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			d, err := a.buildDigest(ctx, nil)
			if err != nil {
				return err
			}
			assistant, _, err := a.buildAssistant(a.buildTools(d.source))
			if err != nil {
				return err
			}
			if assistant == nil {
				return errors.New("no LLM provider configured; set llm.providers or OPENROUTER_API_KEY")
			}
			if d.redis != nil {
				assistant.WithAlertContext(d.redis)
			}

			out := cmd.OutOrStdout()
			if list {
				for _, p := range assistant.Profiles() {
					fmt.Fprintf(out, "%-24s %s\n", p.Name, p.Description)
				}
				return nil
			}
			if len(args) == 0 {
				return errors.New("a question is required")
			}

			result, err := assistant.Ask(ctx, profile, strings.Join(args, " "), approved)
			var waiting *agent.ErrWaitingForApproval
			if errors.As(err, &waiting) {
				return fmt.Errorf("tool %s changes cluster state; re-run with --approve to allow it", waiting.ToolName)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, result.Answer)
			if root.verbose {
				fmt.Fprintf(out, "\n(profile %s, %d steps, handoffs %v)\n", result.Profile, len(result.Steps), result.Handoffs)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Agent profile; matched from the question when empty")
	cmd.Flags().BoolVar(&approved, "approve", false, "Allow high-risk tools such as set_deployment_replicas")
	cmd.Flags().BoolVar(&list, "list", false, "List the agent profiles and exit")
	return cmd
}
