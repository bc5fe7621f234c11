package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"claimguard/internal/ai/simulated"
	claims "claimguard/internal/claims/models"
	"claimguard/internal/platform/config"
	"claimguard/internal/platform/logger"
	"claimguard/internal/session"
	"claimguard/internal/session/models"
	dErrors "claimguard/pkg/domain-errors"
	"claimguard/pkg/requestcontext"
)

var (
	scenarioPath string
	jsonOutput   bool
	logLevel     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted demonstration against simulated AI services",
	Long: `Simulate runs one demonstration session from a YAML scenario. Claims go
through the same budget, orchestration and synthesis pipeline as the API but
against deterministic AI services, so a demo can be rehearsed offline.

Example:
  claimguard simulate --scenario examples/scenario.yaml
  claimguard simulate --scenario examples/scenario.yaml --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sc, err := LoadScenario(scenarioPath)
		if err != nil {
			return err
		}
		log := logger.NewWithWriter(cmd.ErrOrStderr(), logLevel, "text")
		summary, err := runSimulation(cmd.Context(), sc, log, cmd.OutOrStdout(), !jsonOutput)
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to a scenario YAML file")
	simulateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print only the session summary as JSON")
	simulateCmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	_ = simulateCmd.MarkFlagRequired("scenario")
}

// runSimulation plays sc against an in-memory stack and returns the final
// summary. When table is set, each claim outcome and the summary are written
// to out as they happen.
func runSimulation(ctx context.Context, sc *Scenario, log *slog.Logger, out io.Writer, table bool) (models.Summary, error) {
	cfg := config.Default()
	sc.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return models.Summary{}, fmt.Errorf("scenario config: %w", err)
	}

	faults := simulated.NewFaults()
	for _, f := range sc.Faults {
		if f.Count == 0 {
			faults.InjectAlways(claims.ClaimID(f.ClaimID), f.Category)
			continue
		}
		faults.Inject(claims.ClaimID(f.ClaimID), f.Category, f.Count)
	}

	st, err := buildStack(ctx, cfg, log, prometheus.NewRegistry(), simulatedAI(sc.Latency, faults))
	if err != nil {
		return models.Summary{}, err
	}
	defer st.Close()

	ctx = requestcontext.WithExecutiveID(ctx, sc.ExecutiveID)
	sess, err := st.service.StartSession(ctx)
	if err != nil {
		return models.Summary{}, fmt.Errorf("start session: %w", err)
	}

	var tw *tabwriter.Writer
	if table {
		fmt.Fprintf(out, "Session %s (%s)\n\n", sess.ID, sc.Name)
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tCLAIM\tSTATUS\tDECISION\tCONFIDENCE\tAI COST\tNOTE")
	}
	row := func(i int, o *session.ClaimOutcome, rejection error) {
		if tw == nil {
			return
		}
		if rejection != nil {
			fmt.Fprintf(tw, "%d\t-\trejected\t-\t-\t-\t%s\n", i+1, dErrors.CodeOf(rejection))
			return
		}
		decision, confidence, note := "-", "-", ""
		if o.Result != nil {
			decision = string(o.Result.Decision)
			confidence = fmt.Sprintf("%.1f", o.Result.ConfidenceScore)
		}
		if o.Cause != nil {
			note = string(dErrors.CodeOf(o.Cause))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t$%.2f\t%s\n", i+1, o.Claim.ID, o.Claim.Status, decision, confidence, claimCost(o), note)
	}

	if sc.Batch {
		items, err := st.service.SubmitBatch(ctx, sess.ID, sc.Claims)
		if err != nil {
			return models.Summary{}, fmt.Errorf("submit batch: %w", err)
		}
		for _, it := range items {
			row(it.Index, it.Outcome, it.Err)
		}
	} else {
		for i, in := range sc.Claims {
			o, err := st.service.SubmitClaim(ctx, sess.ID, in)
			row(i, o, err)
		}
	}

	if snap, err := st.service.Session(ctx, sess.ID); err == nil && !snap.Status.IsTerminal() {
		if _, err := st.service.CloseSession(ctx, sess.ID); err != nil {
			return models.Summary{}, fmt.Errorf("close session: %w", err)
		}
	}
	summary, err := st.service.Summary(ctx, sess.ID)
	if err != nil {
		return models.Summary{}, fmt.Errorf("summarize session: %w", err)
	}

	if tw != nil {
		_ = tw.Flush()
		printSummary(out, summary)
	}
	return summary, nil
}

func claimCost(o *session.ClaimOutcome) float64 {
	switch {
	case o.Result != nil:
		return o.Result.AICost
	case o.Claim.ReviewPacket != nil:
		return o.Claim.ReviewPacket.AICost
	default:
		return 0
	}
}

func printSummary(out io.Writer, s models.Summary) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Status\t%s\n", s.Status)
	fmt.Fprintf(tw, "Claims processed\t%d\n", s.ClaimsProcessed)
	fmt.Fprintf(tw, "Human review\t%d\n", s.HumanReviewCount)
	fmt.Fprintf(tw, "Total AI cost\t$%.2f\n", s.TotalCostUSD)
	fmt.Fprintf(tw, "Cost per claim\t$%.2f\n", s.CostPerClaimUSD)
	fmt.Fprintf(tw, "Budget remaining\t$%.2f\n", s.BudgetRemainingUSD)
	fmt.Fprintf(tw, "Cost reduction\t%.1f%%\n", s.CostReductionPct)
	fmt.Fprintf(tw, "Time savings\t%.1f%%\n", s.TimeSavingsPct)
	fmt.Fprintf(tw, "Compliance score\t%.1f%%\n", s.ComplianceScore)
	fmt.Fprintf(tw, "System health\t%s\n", s.SystemHealth)
	_ = tw.Flush()
}
