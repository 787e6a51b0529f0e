package cmd

import (
	"fmt"
	"io"

	staking_protocol "nft-staking-cli/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

var (
	_ staking_protocol.Notifier = (*consoleNotifier)(nil)
	_ staking_protocol.Notifier = (*logNotifier)(nil)
)

// consoleNotifier prints transaction outcomes for interactive use.
type consoleNotifier struct {
	out io.Writer
}

func (n *consoleNotifier) TransactionSucceeded(sig solana.Signature) {
	fmt.Fprintln(n.out, successStyle.Render("✅ Transaction finalized"))
	fmt.Fprintf(n.out, "   Signature: %s\n", sig.String())
}

func (n *consoleNotifier) TransactionFailed(err error) {
	fmt.Fprintln(n.out, warningStyle.Render(fmt.Sprintf("❌ Transaction failed: %v", err)))
}

// logNotifier reports outcomes through logrus, for the API server.
type logNotifier struct {
	log *logrus.Entry
}

func (n *logNotifier) TransactionSucceeded(sig solana.Signature) {
	n.log.WithField("signature", sig.String()).Info("transaction finalized")
}

func (n *logNotifier) TransactionFailed(err error) {
	n.log.WithError(err).Warn("transaction failed")
}
