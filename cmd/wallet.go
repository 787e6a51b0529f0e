package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage wallet profiles",
}

var walletCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Generate a new keypair and save it as a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runWithApp(runWalletCreate),
}

var walletImportCmd = &cobra.Command{
	Use:   "import <name> <keypair-file>",
	Short: "Register an existing solana-keygen keypair file as a profile",
	Args:  cobra.ExactArgs(2),
	RunE:  runWithApp(runWalletImport),
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wallet profiles",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runWalletList),
}

var walletUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a profile the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runWithApp(runWalletUse),
}

var walletAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the address and SOL balance of the current wallet",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runWalletAddress),
}

var walletExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the private key of the current wallet (UNSAFE)",
	Args:  cobra.NoArgs,
	RunE:  runWithApp(runWalletExport),
}

func init() {
	walletCmd.AddCommand(walletCreateCmd, walletImportCmd, walletListCmd, walletUseCmd, walletAddressCmd, walletExportCmd)
	rootCmd.AddCommand(walletCmd)
}

func runWalletCreate(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	if _, err := a.db.GetProfile(args[0]); err == nil {
		return errors.Errorf("profile %q already exists", args[0])
	}
	profile, err := a.createProfile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("✅ Profile created"))
	fmt.Fprintln(out, promptStyle.Render("   Wallet address:"), profile.PublicKey)
	fmt.Fprintln(out, promptStyle.Render("   Keypair file:"), profile.KeypairPath)
	return nil
}

func runWalletImport(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	path, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to load keypair %s", path)
	}
	profile, err := a.importProfile(args[0], path, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("✅ Imported %s as %q", profile.PublicKey, profile.Name)))
	return nil
}

func runWalletList(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	profiles, err := a.db.ListProfiles()
	if err != nil {
		return err
	}
	active := ""
	if p, err := a.db.ActiveProfile(); err == nil {
		active = p.Name
	}

	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		marker := ""
		if p.Name == active {
			marker = "*"
		}
		rows = append(rows, []string{marker, p.Name, p.PublicKey, p.KeypairPath})
	}
	renderTable(cmd.OutOrStdout(), []string{"", "Profile", "Address", "Keypair"}, rows)
	return nil
}

func runWalletUse(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	if err := a.db.SetActiveProfile(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("Now using profile %q", args[0])))
	return nil
}

func runWalletAddress(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	key, profile, err := a.resolveKey()
	if err != nil {
		return err
	}
	return printWallet(ctx, cmd, a, key.PublicKey(), profile)
}

func printWallet(ctx context.Context, cmd *cobra.Command, a *app, owner solana.PublicKey, profile string) error {
	info, err := a.ledger.GetAccount(ctx, owner)
	if err != nil {
		return err
	}
	var lamports uint64
	if info != nil {
		lamports = info.Lamports
	}
	renderKeyValues(cmd.OutOrStdout(), [][2]string{
		{"Profile", profile},
		{"Address", owner.String()},
		{"Balance", formatAmount(lamports, 9) + " SOL"},
	})
	return nil
}

func runWalletExport(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	key, _, err := a.resolveKey()
	if err != nil {
		return err
	}
	return exportKey(cmd, key)
}

func exportKey(cmd *cobra.Command, key solana.PrivateKey) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, warningStyle.Render("\n⚠️ WARNING: EXPORTING YOUR PRIVATE KEY ⚠️"))
	fmt.Fprintln(out, promptStyle.Render("Anyone holding this key controls your staked NFTs and rewards."))
	confirm := false
	prompt := &survey.Confirm{Message: "Are you absolutely sure?", Default: false}
	if err := survey.AskOne(prompt, &confirm); err != nil {
		return err
	}
	if !confirm {
		fmt.Fprintln(out, promptStyle.Render("\nExport cancelled."))
		return nil
	}
	fmt.Fprintln(out, titleStyle.Render("\n🔐 Your Private Key (Base58):"))
	fmt.Fprintln(out, key.String())
	return nil
}
