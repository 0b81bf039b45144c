package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bidon15/ubexdeploy/internal/config"
	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/directory"
	"github.com/Bidon15/ubexdeploy/internal/plans"
	"github.com/Bidon15/ubexdeploy/internal/preflight"
	"github.com/Bidon15/ubexdeploy/internal/verify"
)

// migrateCmd deploys the plan of the selected network.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Deploy the contract set for a network",
	Long: `Deploy every component of the network's plan, in order, and publish the
resulting addresses to the deployment directory.

Networks without a plan deploy nothing and succeed. The first failed
deployment aborts the run; nothing is published for an aborted run.

Examples:
  # Dry run on the in-memory platform with the owner check
  ubexdeploy migrate --network development --platform memory --verify

  # Deploy to a local chain
  UBEX_DEPLOYER_PRIVATE_KEY=... ubexdeploy migrate --platform evm --rpc-url http://127.0.0.1:8545`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("verify", false, "Run the owner check after a successful run")
	migrateCmd.Flags().Bool("skip-preflight", false, "Skip RPC, chain ID and balance checks")
}

// MigrateOutput represents the migrate command output.
type MigrateOutput struct {
	Network     string             `json:"network"`
	Strategy    string             `json:"strategy"`
	Deployments []DeploymentOutput `json:"deployments"`
	Verified    *bool              `json:"verified,omitempty"`
}

// DeploymentOutput represents one deployed component.
type DeploymentOutput struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

func toDeploymentOutputs(ds []deploy.Deployment) []DeploymentOutput {
	out := make([]DeploymentOutput, 0, len(ds))
	for _, d := range ds {
		out = append(out, DeploymentOutput{
			Name:        d.Name,
			Address:     d.Address.Hex(),
			TxHash:      d.TxHash.Hex(),
			BlockNumber: d.BlockNumber,
		})
	}
	return out
}

func runMigrate(cmd *cobra.Command, args []string) error {
	runVerify, _ := cmd.Flags().GetBool("verify")
	skipPreflight, _ := cmd.Flags().GetBool("skip-preflight")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	book, err := plans.NewBook(deploy.Strategy(a.cfg.Plan.Strategy))
	if err != nil {
		return err
	}

	dir, err := a.openDirectory(ctx)
	if err != nil {
		return err
	}

	// A network without a plan sends nothing, so the platform is never
	// opened for it.
	var platform Platform
	var deployer deploy.Deployer
	if book.Recognizes(a.network()) {
		platform, err = a.openPlatform(ctx)
		if err != nil {
			return err
		}
		deployer = platform

		if a.cfg.Platform.Driver == config.PlatformEVM && a.cfg.Preflight.Enabled && !skipPreflight {
			if err := runPreflight(ctx, a, platform); err != nil {
				return err
			}
		}
	}

	orchestrator := deploy.NewOrchestrator(book, deployer, deploy.OrchestratorConfig{
		Logger:   a.logger,
		Observer: a.metrics,
	})

	reg, runErr := orchestrator.Run(ctx, a.network())
	if runErr == nil {
		runErr = directory.Publish(ctx, dir, a.cfg.Network, reg)
	}

	var verified *bool
	if runErr == nil && runVerify && reg.Len() > 0 {
		owner, _ := reg.Address(plans.SystemOwner)
		h := verify.NewHarness(dir, platform, a.cfg.Network, verify.WithLogger(a.logger), verify.WithRecorder(a.metrics))
		runErr = h.Check(ctx, plans.OwnerCheck(owner))
		ok := runErr == nil
		verified = &ok
	}

	pushMetrics(ctx, a)

	if runErr != nil {
		return runErr
	}

	plan, _ := book.Resolve(a.network())
	output := MigrateOutput{
		Network:     a.cfg.Network,
		Strategy:    string(plan.Strategy),
		Deployments: toDeploymentOutputs(reg.Deployments()),
		Verified:    verified,
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), output)
	}

	out := cmd.OutOrStdout()
	if len(output.Deployments) == 0 {
		fmt.Fprintf(out, "%s No plan for network %s, nothing deployed\n", colorYellow("!"), output.Network)
		return nil
	}

	w := newTable(out)
	printTableHeader(w, "COMPONENT", "ADDRESS", "TX HASH", "BLOCK")
	for _, d := range output.Deployments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", d.Name, d.Address, truncate(d.TxHash, 18), d.BlockNumber)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Deployed %d components to %s\n", colorGreen("✓"), len(output.Deployments), output.Network)
	if verified != nil {
		fmt.Fprintf(out, "%s Owner check passed\n", colorGreen("✓"))
	}
	return nil
}

// runPreflight checks the chain before any transaction is sent.
func runPreflight(ctx context.Context, a *app, platform Platform) error {
	resp, err := preflight.NewChecker().RunChecks(ctx, &preflight.Request{
		RPCURL:             a.cfg.RPC.URL,
		ChainID:            a.cfg.RPC.ChainID,
		Deployer:           platform.Deployer(),
		RequiredFundingWei: a.cfg.RequiredFunding(),
	})
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	for _, c := range resp.Checks {
		level := slog.LevelInfo
		if !c.Passed {
			level = slog.LevelError
		}
		a.logger.Log(ctx, level, "preflight check",
			slog.String("check", string(c.Name)),
			slog.Bool("passed", c.Passed),
			slog.String("message", c.Message),
		)
	}
	return resp.Err()
}

// pushMetrics sends the run's metrics when a Pushgateway is configured.
// Push failures are logged and never fail the command.
func pushMetrics(ctx context.Context, a *app) {
	if a.cfg.Metrics.PushURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.metrics.Push(pushCtx, a.cfg.Metrics.PushURL, a.cfg.Metrics.Job, a.cfg.Network); err != nil {
		a.logger.Warn("metrics push failed", slog.String("error", err.Error()))
	}
}
