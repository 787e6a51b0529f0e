package cmd

import (
	"context"
	"fmt"
	"strings"

	staking_protocol "nft-staking-cli/solana"
	"nft-staking-cli/storage"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	figure "github.com/common-nighthawk/go-figure"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var errUserExited = errors.New("user exited")

const (
	menuViewPool     = "View Pool"
	menuMyNfts       = "My NFTs"
	menuStakedNfts   = "Staked NFTs"
	menuStake        = "Stake an NFT"
	menuUnstake      = "Unstake an NFT"
	menuClaim        = "Claim Rewards"
	menuHistory      = "Activity History"
	menuWallet       = "Wallet Management"
	menuSwitch       = "Switch Profile"
	menuCreate       = "Create New Profile"
	menuExit         = "Exit"
	menuBack         = "Back to Main Menu"
	menuViewAddress  = "View Address & Balance"
	menuExportWallet = "Export Wallet (UNSAFE)"
)

// runInteractive is the menu-driven mode used when no subcommand is given.
func runInteractive(ctx context.Context, cmd *cobra.Command, args []string, a *app) error {
	banner := figure.NewFigure("STAKE", "larry3d", true)
	fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(banner.String()))

	// An explicit wallet pins the session; Switch Profile then exits.
	if a.cfg.Keypair != "" || a.cfg.Profile != "" {
		key, name, err := a.resolveKey()
		if err != nil {
			return err
		}
		err = runProfileMenu(ctx, cmd, a, &storage.Profile{Name: name, PublicKey: key.PublicKey().String()})
		if errors.Is(err, terminal.InterruptErr) {
			return nil
		}
		return err
	}

	for {
		profile, err := selectProfile(cmd, a)
		if errors.Is(err, errUserExited) || errors.Is(err, terminal.InterruptErr) {
			fmt.Fprintln(cmd.OutOrStdout(), "Exiting.")
			return nil
		}
		if err != nil {
			return err
		}
		if err := runProfileMenu(ctx, cmd, a, profile); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}
	}
}

// selectProfile lets the user pick or create a wallet profile. A first run
// creates the default profile without asking.
func selectProfile(cmd *cobra.Command, a *app) (*storage.Profile, error) {
	for {
		profiles, err := a.db.ListProfiles()
		if err != nil {
			return nil, err
		}
		if len(profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("🚀 Welcome! Creating your default wallet profile."))
			profile, err := a.createProfile(defaultProfileName)
			if err != nil {
				return nil, err
			}
			fmt.Fprintln(cmd.OutOrStdout(), promptStyle.Render("   Your wallet address:"), profile.PublicKey)
			continue
		}

		options := make([]string, 0, len(profiles)+2)
		byName := make(map[string]*storage.Profile, len(profiles))
		for _, p := range profiles {
			options = append(options, p.Name)
			byName[p.Name] = p
		}
		options = append(options, menuCreate, menuExit)

		selection := ""
		prompt := &survey.Select{
			Message: promptStyle.Render("Choose a profile to continue:"),
			Options: options,
		}
		if err := survey.AskOne(prompt, &selection); err != nil {
			return nil, err
		}

		switch selection {
		case menuCreate:
			name := ""
			if err := survey.AskOne(&survey.Input{Message: "Profile name:"}, &name, survey.WithValidator(survey.Required)); err != nil {
				return nil, err
			}
			if _, err := a.createProfile(strings.TrimSpace(name)); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), warningStyle.Render(fmt.Sprintf("❌ Failed to create profile: %v", err)))
			}
			continue
		case menuExit:
			return nil, errUserExited
		default:
			if err := a.db.SetActiveProfile(selection); err != nil {
				return nil, err
			}
			return byName[selection], nil
		}
	}
}

func runProfileMenu(ctx context.Context, cmd *cobra.Command, a *app, profile *storage.Profile) error {
	out := cmd.OutOrStdout()
	if a.cfg.Keypair == "" {
		a.cfg.Profile = profile.Name
	}

	session, _, err := a.openSession(ctx, &consoleNotifier{out: out})
	if err != nil {
		fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("Failed to open session: %v", err)))
		return nil
	}

	fmt.Fprintf(out, "\n---\n")
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Operating with profile: %s", profile.Name)))
	fmt.Fprintln(out, promptStyle.Render(fmt.Sprintf("Address: %s", session.Owner())))
	fmt.Fprintln(out, promptStyle.Render(fmt.Sprintf("Pool:    %s", session.Pool())))
	fmt.Fprintf(out, "---\n\n")

	fmt.Fprintln(out, promptStyle.Render("Discovering your NFTs..."))
	if _, err := session.Refresh(ctx); err != nil {
		fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("Discovery failed: %v", err)))
	}

	for {
		choice := ""
		menu := &survey.Select{
			Message: promptStyle.Render("Choose an action:"),
			Options: []string{menuViewPool, menuMyNfts, menuStakedNfts, menuStake, menuUnstake, menuClaim, menuHistory, menuWallet, menuSwitch},
			Help:    "Use the arrow keys to navigate, and press Enter to select.",
		}
		if err := survey.AskOne(menu, &choice); err != nil {
			return err
		}

		var actionErr error
		switch choice {
		case menuViewPool:
			printPool(ctx, cmd, a, session.Pool(), session.PoolConfig())
		case menuMyNfts:
			actionErr = withSnapshot(ctx, session, func(snap *staking_protocol.Snapshot) {
				printOwnedNfts(cmd, snap.Owned)
			})
		case menuStakedNfts:
			actionErr = withSnapshot(ctx, session, func(snap *staking_protocol.Snapshot) {
				printStakedNfts(ctx, cmd, a, session.PoolConfig(), snap.Staked)
			})
		case menuStake:
			actionErr = handleStakeMenu(ctx, cmd, session)
		case menuUnstake:
			actionErr = handleUnstakeMenu(ctx, cmd, session)
		case menuClaim:
			actionErr = claimRewards(ctx, cmd, a, session)
		case menuHistory:
			actionErr = printHistory(ctx, cmd, session, staking_protocol.DefaultHistoryLimit)
		case menuWallet:
			actionErr = handleWalletManagement(ctx, cmd, a, session, profile.Name)
		case menuSwitch:
			return nil
		}
		if actionErr != nil {
			if errors.Is(actionErr, terminal.InterruptErr) {
				return actionErr
			}
			fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("\n❌ %v", actionErr)))
		}
		fmt.Fprintln(out)
	}
}

func withSnapshot(ctx context.Context, session *staking_protocol.Session, fn func(*staking_protocol.Snapshot)) error {
	snap := session.Snapshot()
	if snap == nil {
		var err error
		if snap, err = session.Refresh(ctx); err != nil {
			return err
		}
	}
	fn(snap)
	return nil
}

func handleStakeMenu(ctx context.Context, cmd *cobra.Command, session *staking_protocol.Session) error {
	owned, err := session.DiscoverOwnedNfts(ctx, session.Owner())
	if err != nil {
		return err
	}
	if len(owned) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), promptStyle.Render("No collection NFTs available to stake."))
		return nil
	}

	options := make([]string, 0, len(owned))
	byOption := make(map[string]solana.PublicKey, len(owned))
	for _, nft := range owned {
		option := fmt.Sprintf("%s (%s)", nft.Name, shorten(nft.Mint.String()))
		options = append(options, option)
		byOption[option] = nft.Mint
	}

	selection := ""
	if err := survey.AskOne(&survey.Select{Message: "Choose an NFT to stake:", Options: options}, &selection); err != nil {
		return err
	}
	return stakeNft(ctx, cmd, session, byOption[selection])
}

func handleUnstakeMenu(ctx context.Context, cmd *cobra.Command, session *staking_protocol.Session) error {
	staked, err := session.DiscoverStakedNfts(ctx, session.Owner())
	if err != nil {
		return err
	}
	if len(staked) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), promptStyle.Render("Nothing staked in this pool."))
		return nil
	}

	options := make([]string, 0, len(staked))
	byOption := make(map[string]solana.PublicKey, len(staked))
	for _, s := range staked {
		option := fmt.Sprintf("%s (unlocks %s)", s.Nft.Name, s.UnlocksAt.Local().Format("2006-01-02 15:04"))
		options = append(options, option)
		byOption[option] = s.Address
	}

	selection := ""
	if err := survey.AskOne(&survey.Select{Message: "Choose an NFT to unstake:", Options: options}, &selection); err != nil {
		return err
	}
	confirm := false
	if err := survey.AskOne(&survey.Confirm{Message: "Unstake " + selection + "?", Default: true}, &confirm); err != nil {
		return err
	}
	if !confirm {
		return nil
	}
	return unstakeNft(ctx, cmd, session, byOption[selection])
}

func handleWalletManagement(ctx context.Context, cmd *cobra.Command, a *app, session *staking_protocol.Session, profile string) error {
	menu := &survey.Select{
		Message: promptStyle.Render("Wallet Management:"),
		Options: []string{menuViewAddress, menuExportWallet, menuBack},
	}
	choice := ""
	if err := survey.AskOne(menu, &choice); err != nil {
		return err
	}

	switch choice {
	case menuViewAddress:
		return printWallet(ctx, cmd, a, session.Owner(), profile)
	case menuExportWallet:
		p, err := a.db.GetProfile(profile)
		if err != nil {
			return err
		}
		key, _, err := a.loadProfileKey(p)
		if err != nil {
			return err
		}
		return exportKey(cmd, key)
	}
	return nil
}
