package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nft-staking-cli",
	Short: "Stake collection NFTs and claim token rewards on Solana.",
	Long: `An interactive command-line client for the NFT staking program: browse
the NFTs you hold, stake them into a pool, claim accrued rewards and unstake
once the lock period has passed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWithApp(runInteractive),
}

func init() {
	registerFlags(rootCmd.PersistentFlags())
}

// runWithApp resolves configuration for cmd and hands fn a ready app. The
// context is cancelled on interrupt.
func runWithApp(fn func(ctx context.Context, cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd.Flags())
		if err != nil {
			return err
		}
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return fn(ctx, cmd, args, a)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, warningStyle.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}
}
