package staking_protocol

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultConfirmTimeout = 90 * time.Second
	DefaultPollInterval   = 700 * time.Millisecond
)

// Notifier receives the user-facing outcome of every submission.
type Notifier interface {
	TransactionSucceeded(sig solana.Signature)
	TransactionFailed(err error)
}

type nopNotifier struct{}

func (nopNotifier) TransactionSucceeded(solana.Signature) {}
func (nopNotifier) TransactionFailed(error)               {}

// Submitter signs, broadcasts and awaits finalization of a plan. It never
// retries a broadcast transaction.
type Submitter struct {
	log      *logrus.Entry
	ledger   Ledger
	notifier Notifier

	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

func NewSubmitter(ledger Ledger, notifier Notifier) *Submitter {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Submitter{
		log:            logrus.StandardLogger().WithField("type", "staking/submitter"),
		ledger:         ledger,
		notifier:       notifier,
		ConfirmTimeout: DefaultConfirmTimeout,
		PollInterval:   DefaultPollInterval,
	}
}

// Submit returns the finalized signature. Every failure is a
// *TransactionError and is reported to the notifier.
func (s *Submitter) Submit(ctx context.Context, signer Signer, plan *Plan) (solana.Signature, error) {
	sig, err := s.submit(ctx, signer, plan)
	if err != nil {
		s.notifier.TransactionFailed(err)
		return solana.Signature{}, err
	}
	s.notifier.TransactionSucceeded(sig)
	return sig, nil
}

func (s *Submitter) submit(ctx context.Context, signer Signer, plan *Plan) (solana.Signature, error) {
	payer := signer.PublicKey()
	log := s.log.WithFields(logrus.Fields{
		"method": "Submit",
		"payer":  payer.String(),
	})

	if plan.Empty() {
		return solana.Signature{}, &TransactionError{Stage: StageAssemble, Err: invalidInput("empty instruction list")}
	}

	blockhash, err := s.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, &TransactionError{Stage: StageBlockhash, Err: err}
	}

	tx, err := solana.NewTransaction(plan.Instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, &TransactionError{Stage: StageAssemble, Err: errors.Wrap(err, "failed to create transaction")}
	}

	if len(plan.Signers) > 0 {
		extra := make(map[solana.PublicKey]*solana.PrivateKey, len(plan.Signers))
		for i := range plan.Signers {
			extra[plan.Signers[i].PublicKey()] = &plan.Signers[i]
		}
		if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
			return extra[key]
		}); err != nil {
			return solana.Signature{}, &TransactionError{Stage: StageSign, Err: errors.Wrap(err, "failed to sign with generated keys")}
		}
	}

	signed, err := signer.SignTransaction(ctx, tx)
	if err != nil {
		if !errors.Is(err, ErrSignerRejected) {
			err = errors.Wrapf(ErrSignerRejected, "%v", err)
		}
		return solana.Signature{}, &TransactionError{Stage: StageSign, Err: err}
	}

	sig, err := s.ledger.SendTransaction(ctx, signed)
	if err != nil {
		return solana.Signature{}, &TransactionError{Stage: StageBroadcast, Err: err}
	}
	log = log.WithField("signature", sig.String())
	log.Debug("transaction broadcast, awaiting finalization")

	if err := s.awaitFinalized(ctx, sig); err != nil {
		return solana.Signature{}, &TransactionError{Stage: StageConfirm, Signature: &sig, Err: err}
	}

	log.Info("transaction finalized")
	return sig, nil
}

func (s *Submitter) awaitFinalized(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, s.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "confirmation not observed")
		case <-ticker.C:
			status, err := s.ledger.GetSignatureStatus(ctx, sig)
			if err != nil {
				s.log.WithError(err).Debug("signature status poll failed")
				continue
			}
			if status == nil {
				continue
			}
			if status.Err != "" {
				return errors.Errorf("transaction failed on-chain: %s", status.Err)
			}
			if status.Finalized() {
				return nil
			}
		}
	}
}
