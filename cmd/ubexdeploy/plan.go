package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/plans"
)

// planCmd prints the resolved plan without deploying.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the deployment plan for a network",
	Long: `Resolve and validate the plan of a network without sending anything.

Examples:
  ubexdeploy plan --network development
  ubexdeploy plan --network development --strategy topological --output yaml`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
}

// PlanOutput represents the plan command output.
type PlanOutput struct {
	Network    string           `json:"network" yaml:"network"`
	Strategy   string           `json:"strategy" yaml:"strategy"`
	Recognized bool             `json:"recognized" yaml:"recognized"`
	Steps      []PlanStepOutput `json:"steps" yaml:"steps"`
}

// PlanStepOutput represents one deployment step.
type PlanStepOutput struct {
	Step      int      `json:"step" yaml:"step"`
	Component string   `json:"component" yaml:"component"`
	Args      []string `json:"args" yaml:"args"`
	DependsOn []string `json:"depends_on" yaml:"depends_on"`
}

func buildPlanOutput(book *deploy.PlanBook, network deploy.Selector) (PlanOutput, error) {
	plan, err := book.Resolve(network)
	if err != nil {
		return PlanOutput{}, err
	}
	if err := deploy.ValidateOrder(plan.Descriptors); err != nil {
		return PlanOutput{}, err
	}

	output := PlanOutput{
		Network:    string(network),
		Strategy:   string(plan.Strategy),
		Recognized: book.Recognizes(network),
		Steps:      make([]PlanStepOutput, 0, len(plan.Descriptors)),
	}
	for i, d := range plan.Descriptors {
		args := make([]string, 0, len(d.Args))
		for _, s := range d.Args {
			args = append(args, s.String())
		}
		deps := d.Dependencies()
		if deps == nil {
			deps = []string{}
		}
		output.Steps = append(output.Steps, PlanStepOutput{
			Step:      i + 1,
			Component: d.Name,
			Args:      args,
			DependsOn: deps,
		})
	}
	return output, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	book, err := plans.NewBook(deploy.Strategy(cfg.Plan.Strategy))
	if err != nil {
		return err
	}
	output, err := buildPlanOutput(book, deploy.Selector(cfg.Network))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		return printJSON(out, output)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(output); err != nil {
			return err
		}
		return enc.Close()
	case "table":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	if len(output.Steps) == 0 {
		fmt.Fprintf(out, "%s No plan for network %s (no-op)\n", colorYellow("!"), output.Network)
		return nil
	}

	fmt.Fprintf(out, "Network %s, %s order\n\n", output.Network, output.Strategy)
	w := newTable(out)
	printTableHeader(w, "STEP", "COMPONENT", "ARGS", "DEPENDS ON")
	for _, s := range output.Steps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Step, s.Component, dash(strings.Join(s.Args, ", ")), dash(strings.Join(s.DependsOn, ", ")))
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
