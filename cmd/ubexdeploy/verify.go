package main

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Bidon15/ubexdeploy/internal/directory"
	"github.com/Bidon15/ubexdeploy/internal/plans"
	"github.com/Bidon15/ubexdeploy/internal/verify"
)

// verifyCmd checks the state of deployed components.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the state of a deployed component",
	Long: `Read an accessor of the component currently deployed on the network and
compare it with an expected value.

Without flags, checks that AdamCoefficients stores the SystemOwner address
recorded in the deployment directory.

With the memory platform and a file directory, the contracts of earlier
runs are kept in a sibling <name>.memory.json (or platform.state_path).

Examples:
  # Owner check
  ubexdeploy verify --network development

  # Any accessor
  ubexdeploy verify --component UbexExchange --accessor storageAddress \
    --expect 0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("component", "", "Component to check (default: owner check)")
	verifyCmd.Flags().String("accessor", "", "Accessor to read (required with --component)")
	verifyCmd.Flags().String("expect", "", "Expected value; 0x addresses compare by value")
	verifyCmd.Flags().String("message", "", "Label reported on mismatch")
}

// VerifyOutput represents the verify command output.
type VerifyOutput struct {
	Network   string `json:"network"`
	Component string `json:"component"`
	Accessor  string `json:"accessor"`
	Expected  string `json:"expected"`
	Passed    bool   `json:"passed"`
	Error     string `json:"error,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	component, _ := cmd.Flags().GetString("component")
	accessor, _ := cmd.Flags().GetString("accessor")
	expect, _ := cmd.Flags().GetString("expect")
	message, _ := cmd.Flags().GetString("message")

	if component != "" && accessor == "" {
		return fmt.Errorf("--accessor is required with --component")
	}
	if component != "" && expect == "" {
		return fmt.Errorf("--expect is required with --component")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	dir, err := a.openDirectory(ctx)
	if err != nil {
		return err
	}

	var assertion verify.Assertion
	if component == "" {
		expected := any(expect)
		if expect == "" {
			owner, err := dir.Get(ctx, a.cfg.Network, plans.SystemOwner)
			if errors.Is(err, directory.ErrNotFound) {
				return fmt.Errorf("%w: %s on %s", verify.ErrNotDeployed, plans.SystemOwner, a.cfg.Network)
			}
			if err != nil {
				return err
			}
			expected = owner.Address
		}
		assertion = plans.OwnerCheck(expected)
	} else {
		assertion = verify.Assertion{
			Component: component,
			Accessor:  accessor,
			Expected:  parseExpected(expect),
			Message:   message,
		}
	}

	platform, err := a.openPlatform(ctx)
	if err != nil {
		return err
	}

	h := verify.NewHarness(dir, platform, a.cfg.Network, verify.WithLogger(a.logger), verify.WithRecorder(a.metrics))
	checkErr := h.Check(ctx, assertion)
	pushMetrics(ctx, a)

	output := VerifyOutput{
		Network:   a.cfg.Network,
		Component: assertion.Component,
		Accessor:  assertion.Accessor,
		Expected:  fmt.Sprint(assertion.Expected),
		Passed:    checkErr == nil,
	}
	if checkErr != nil {
		output.Error = checkErr.Error()
	}

	if jsonOut {
		if err := printJSON(cmd.OutOrStdout(), output); err != nil {
			return err
		}
		return checkErr
	}
	if checkErr != nil {
		return checkErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s.%s == %s\n", colorGreen("✓"), output.Component, output.Accessor, output.Expected)
	return nil
}

// parseExpected turns a hex address into common.Address and leaves any other
// value as a string.
func parseExpected(raw string) any {
	if common.IsHexAddress(raw) {
		return common.HexToAddress(raw)
	}
	return raw
}
