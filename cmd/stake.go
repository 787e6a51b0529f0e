package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	staking_protocol "nft-staking-cli/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	dryRun       bool
	historyLimit int
)

var stakeCmd = &cobra.Command{
	Use:   "stake <nft-mint>",
	Short: "Stake an NFT you hold into the pool",
	Args:  cobra.ExactArgs(1),
	RunE:  runWithApp(runStake),
}

var unstakeCmd = &cobra.Command{
	Use:   "unstake <stake-record>",
	Short: "Return a staked NFT once its lock period has passed",
	Args:  cobra.ExactArgs(1),
	RunE:  runWithApp(runUnstake),
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim rewards accrued by all your staked NFTs",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runClaim),
}

var nftsCmd = &cobra.Command{
	Use:   "nfts",
	Short: "List collection NFTs held by the wallet",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runNfts),
}

var stakedCmd = &cobra.Command{
	Use:   "staked",
	Short: "List NFTs staked in the pool with their unlock times",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runStaked),
}

var claimableCmd = &cobra.Command{
	Use:   "claimable",
	Short: "Show rewards claimable right now",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runClaimable),
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent staking activity of the wallet",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runHistory),
}

func init() {
	for _, c := range []*cobra.Command{stakeCmd, unstakeCmd, claimCmd} {
		c.Flags().BoolVar(&dryRun, "dry-run", false, "print the instructions without signing or sending")
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", staking_protocol.DefaultHistoryLimit, "number of recent transactions to inspect")

	rootCmd.AddCommand(stakeCmd, unstakeCmd, claimCmd, nftsCmd, stakedCmd, claimableCmd, historyCmd)
}

func runStake(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	mint, err := solana.PublicKeyFromBase58(args[0])
	if err != nil {
		return errors.Wrap(err, "invalid nft mint")
	}
	session, _, err := a.openSession(ctx, &consoleNotifier{out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	return stakeNft(ctx, cmd, session, mint)
}

func stakeNft(ctx context.Context, cmd *cobra.Command, session *staking_protocol.Session, mint solana.PublicKey) error {
	out := cmd.OutOrStdout()
	if dryRun {
		plan, err := session.Builder().BuildStake(ctx, session.Owner(), session.Pool(), mint)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, plan.Tree())
		fmt.Fprintf(out, "Stake record: %s\n", plan.StakeRecord)
		return nil
	}

	fmt.Fprintln(out, promptStyle.Render(fmt.Sprintf("\nStaking %s... Please wait.", mint)))
	record, _, err := session.Stake(ctx, mint)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, titleStyle.Render("✅ NFT staked"))
	fmt.Fprintf(out, "   Stake record: %s\n", record)
	return nil
}

func runUnstake(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	record, err := solana.PublicKeyFromBase58(args[0])
	if err != nil {
		return errors.Wrap(err, "invalid stake record")
	}
	session, _, err := a.openSession(ctx, &consoleNotifier{out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	return unstakeNft(ctx, cmd, session, record)
}

func unstakeNft(ctx context.Context, cmd *cobra.Command, session *staking_protocol.Session, record solana.PublicKey) error {
	out := cmd.OutOrStdout()
	if dryRun {
		plan, err := session.Builder().BuildUnstake(ctx, session.Owner(), session.PoolConfig(), record, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, plan.Tree())
		return nil
	}

	fmt.Fprintln(out, promptStyle.Render(fmt.Sprintf("\nUnstaking %s... Please wait.", record)))
	if _, err := session.Unstake(ctx, record); err != nil {
		return err
	}
	fmt.Fprintln(out, titleStyle.Render("✅ NFT returned to your wallet"))
	return nil
}

func runClaim(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	session, _, err := a.openSession(ctx, &consoleNotifier{out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	return claimRewards(ctx, cmd, a, session)
}

func claimRewards(ctx context.Context, cmd *cobra.Command, a *app, session *staking_protocol.Session) error {
	out := cmd.OutOrStdout()
	pool := session.PoolConfig()
	decimals := a.mintDecimals(ctx, pool.RewardMint)

	if dryRun {
		plan, err := session.Builder().BuildClaim(ctx, session.Owner(), session.Pool(), pool, time.Now())
		if err != nil {
			return err
		}
		if plan.Empty() {
			fmt.Fprintln(out, promptStyle.Render("Nothing to claim yet."))
			return nil
		}
		fmt.Fprintln(out, plan.Tree())
		fmt.Fprintf(out, "Claiming %s tokens from %d records\n", formatAmount(plan.Claimed, decimals), len(plan.Records))
		return nil
	}

	fmt.Fprintln(out, promptStyle.Render("\nClaiming rewards... Please wait."))
	result, err := session.Claim(ctx)
	if err != nil {
		return err
	}
	if result.Outcome == staking_protocol.OutcomeNoOp {
		fmt.Fprintln(out, promptStyle.Render("Nothing to claim yet."))
		return nil
	}
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("✅ Claimed %s tokens from %d staked NFTs",
		formatAmount(result.Amount, decimals), len(result.Records))))
	return nil
}

func runNfts(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	session, _, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	nfts, err := session.DiscoverOwnedNfts(ctx, session.Owner())
	if err != nil {
		return err
	}
	printOwnedNfts(cmd, nfts)
	return nil
}

func printOwnedNfts(cmd *cobra.Command, nfts []staking_protocol.NftDescriptor) {
	out := cmd.OutOrStdout()
	if len(nfts) == 0 {
		fmt.Fprintln(out, promptStyle.Render("No collection NFTs found in this wallet."))
		return
	}
	rows := make([][]string, 0, len(nfts))
	for _, nft := range nfts {
		ordinal := "-"
		if nft.HasOrdinal {
			ordinal = strconv.Itoa(nft.Ordinal)
		}
		rows = append(rows, []string{nft.Name, ordinal, nft.Mint.String()})
	}
	renderTable(out, []string{"Name", "#", "Mint"}, rows)
}

func runStaked(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	session, _, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	staked, err := session.DiscoverStakedNfts(ctx, session.Owner())
	if err != nil {
		return err
	}
	printStakedNfts(ctx, cmd, a, session.PoolConfig(), staked)
	return nil
}

func printStakedNfts(ctx context.Context, cmd *cobra.Command, a *app, pool *staking_protocol.PoolConfig, staked []staking_protocol.StakedNft) {
	out := cmd.OutOrStdout()
	if len(staked) == 0 {
		fmt.Fprintln(out, promptStyle.Render("No NFTs staked in this pool."))
		return
	}
	decimals := a.mintDecimals(ctx, pool.RewardMint)
	now := time.Now().Unix()

	rows := make([][]string, 0, len(staked))
	for _, s := range staked {
		claimable := staking_protocol.RecordClaimable(now, s.Record, pool)
		rows = append(rows, []string{
			s.Nft.Name,
			s.Address.String(),
			formatUnix(s.Record.StakeTime),
			s.UnlocksAt.UTC().Format(time.RFC3339),
			formatAmount(claimable, decimals),
		})
	}
	renderTable(out, []string{"Name", "Stake record", "Staked", "Unlocks", "Claimable"}, rows)
}

func runClaimable(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	session, _, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	amount, err := session.ComputeClaimable(ctx, session.Owner())
	if err != nil {
		return err
	}
	decimals := a.mintDecimals(ctx, session.PoolConfig().RewardMint)
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", infoStyle.Render(fmt.Sprintf("Claimable: %s", formatAmount(amount, decimals))))
	return nil
}

func runHistory(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	session, _, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	return printHistory(ctx, cmd, session, historyLimit)
}

func printHistory(ctx context.Context, cmd *cobra.Command, session *staking_protocol.Session, limit int) error {
	events, err := session.History(ctx, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, promptStyle.Render("No staking activity found."))
		return nil
	}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		status := "ok"
		if e.Failed {
			status = "failed"
		}
		rows = append(rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Type,
			shorten(e.StakeRecord.String()),
			status,
			e.Signature.String(),
		})
	}
	renderTable(out, []string{"Time", "Action", "Stake record", "Status", "Signature"}, rows)
	return nil
}
