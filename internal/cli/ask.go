package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
)

var (
	askJSON        bool
	askContextOnly bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the project",
	Long: `Classifies the question, gathers context from the vector index and
the relevant live sources, and prints an answer with its supporting
context. With --context-only the answer step is skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the context bundle as JSON")
	askCmd.Flags().BoolVar(&askContextOnly, "context-only", false, "skip answer generation")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if services == nil || services.Provider == nil {
		return errors.New("context provider not configured")
	}

	question := domain.Question{
		ID:      uuid.NewString(),
		Text:    args[0],
		AskedAt: time.Now(),
	}

	ctx := context.Background()
	bundle, err := services.Provider.Gather(ctx, question)
	if err != nil {
		return fmt.Errorf("gather failed: %w", err)
	}

	if askJSON {
		return outputBundleJSON(cmd, bundle)
	}

	if services.LLM != nil && !askContextOnly && !bundle.Empty() {
		answer, err := services.LLM.Answer(ctx, question.Text, renderBundle(bundle))
		if err != nil {
			cmd.PrintErrf("Answer generation failed: %v\n", err)
		} else {
			cmd.Println(answer)
			cmd.Println()
		}
	}

	outputBundleText(cmd, bundle)
	return nil
}

func outputBundleJSON(cmd *cobra.Command, bundle *domain.ContextBundle) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bundle: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputBundleText(cmd *cobra.Command, bundle *domain.ContextBundle) {
	if bundle.Degraded {
		cmd.Println("All sources failed; no context available.")
	} else if bundle.Empty() {
		cmd.Println("No relevant context found.")
	} else {
		cmd.Println("Context:")
		for i, item := range bundle.Items {
			tag := "indexed"
			if item.Live {
				tag = "live"
			}
			cmd.Printf("[%d] %s (%s, %s)\n", i+1, item.Provenance, item.Kind, tag)
			cmd.Printf("    %s\n", excerpt(item.Text, 200))
		}
	}

	for kind, msg := range bundle.Failures {
		cmd.PrintErrf("Warning: %s unavailable: %s\n", kind, msg)
	}
}

// renderBundle flattens the bundle into the context block handed to the
// answer model.
func renderBundle(bundle *domain.ContextBundle) string {
	out := ""
	for i, item := range bundle.Items {
		if i > 0 {
			out += "\n\n"
		}
		out += fmt.Sprintf("[%s %s]\n%s", item.Kind, item.Provenance, item.Text)
	}
	return out
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
