package cmd

import (
	"context"
	"fmt"

	staking_protocol "nft-staking-cli/solana"
	"nft-staking-cli/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var initPoolFlags struct {
	rewardMint   string
	rewardAmount uint64
	period       int64
	withdrawable uint8
	collection   string
	label        string
}

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Show the configuration of the selected pool",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runPool),
}

var initPoolCmd = &cobra.Command{
	Use:   "init-pool",
	Short: "Create a new staking pool owned by the wallet",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runInitPool),
}

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "List pools remembered in the local database",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runPools),
}

func init() {
	f := initPoolCmd.Flags()
	f.StringVar(&initPoolFlags.rewardMint, "reward-mint", staking_protocol.DefaultRewardMint.String(), "mint of the reward token")
	f.Uint64Var(&initPoolFlags.rewardAmount, "reward-amount", 0, "reward per period per NFT, in raw token units")
	f.Int64Var(&initPoolFlags.period, "period", 86400, "reward period in seconds")
	f.Uint8Var(&initPoolFlags.withdrawable, "withdrawable", 7, "number of periods that can be claimed per stake")
	f.StringVar(&initPoolFlags.collection, "stake-collection", staking_protocol.DefaultCollection, "collection symbol the pool accepts")
	f.StringVar(&initPoolFlags.label, "label", "", "local name for the new pool")
	_ = initPoolCmd.MarkFlagRequired("reward-amount")

	rootCmd.AddCommand(poolCmd, initPoolCmd, poolsCmd)
}

func runPool(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	session, _, err := a.openSession(ctx, nil)
	if err != nil {
		return err
	}
	printPool(ctx, cmd, a, session.Pool(), session.PoolConfig())
	return nil
}

func printPool(ctx context.Context, cmd *cobra.Command, a *app, address solana.PublicKey, pool *staking_protocol.PoolConfig) {
	decimals := a.mintDecimals(ctx, pool.RewardMint)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Pool "+address.String()))
	renderKeyValues(out, [][2]string{
		{"Owner", pool.Owner.String()},
		{"Reward mint", pool.RewardMint.String()},
		{"Reward account", pool.RewardAccount.String()},
		{"Reward per period", formatAmount(pool.RewardAmount, decimals)},
		{"Period", formatPeriod(pool.Period)},
		{"Withdrawable periods", fmt.Sprintf("%d", pool.Withdrawable)},
		{"Lock duration", formatPeriod(pool.Period * int64(pool.Withdrawable))},
		{"Collection", pool.StakeCollection},
	})
}

func runInitPool(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	rewardMint, err := solana.PublicKeyFromBase58(initPoolFlags.rewardMint)
	if err != nil {
		return errors.Wrap(err, "invalid reward mint")
	}

	key, _, err := a.resolveKey()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	session, err := a.newSession(key, &consoleNotifier{out: out})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, promptStyle.Render("\nCreating pool... Please wait."))
	pool, sig, err := session.InitializePool(ctx,
		rewardMint,
		initPoolFlags.rewardAmount,
		initPoolFlags.period,
		initPoolFlags.withdrawable,
		initPoolFlags.collection,
	)
	if err != nil {
		return err
	}

	record := &storage.PoolRecord{
		Address:    pool.String(),
		Label:      initPoolFlags.label,
		Owner:      session.Owner().String(),
		RewardMint: rewardMint.String(),
		Collection: initPoolFlags.collection,
		Signature:  sig.String(),
	}
	if err := a.db.SavePool(record); err != nil {
		a.log.WithError(err).Warn("pool created but could not be saved locally")
	}

	fmt.Fprintln(out, titleStyle.Render("✅ Pool created"))
	fmt.Fprintf(out, "   Address: %s\n", pool)
	fmt.Fprintln(out, promptStyle.Render("   Fund the pool's reward account before users claim."))
	return nil
}

func runPools(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	pools, err := a.db.ListPools()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(pools) == 0 {
		fmt.Fprintln(out, promptStyle.Render("No pools saved yet. Create one with init-pool."))
		return nil
	}
	rows := make([][]string, 0, len(pools))
	for _, p := range pools {
		rows = append(rows, []string{p.Label, p.Address, p.Collection, p.CreatedAt.Format("2006-01-02")})
	}
	renderTable(out, []string{"Label", "Address", "Collection", "Created"}, rows)
	return nil
}
