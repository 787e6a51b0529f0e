package staking_protocol

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput is returned when a caller-supplied value is rejected
	// before any ledger I/O happens.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedRecord indicates an on-chain buffer does not match the
	// expected layout (wrong size or discriminator).
	ErrMalformedRecord = errors.New("malformed record")

	// ErrRecordNotFound indicates an expected ledger account is absent.
	ErrRecordNotFound = errors.New("record not found")

	// ErrSignerRejected indicates the external signer declined to sign.
	ErrSignerRejected = errors.New("signer rejected transaction")

	// ErrTransactionFailed covers broadcast and confirmation failures,
	// including confirmation timeouts.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrOperationInProgress is returned when a state-changing operation is
	// attempted while another one on the same session has not finished.
	ErrOperationInProgress = errors.New("another operation is in progress")

	// ErrMetadataFetchFailed indicates an off-chain metadata document was
	// unreachable or unparsable.
	ErrMetadataFetchFailed = errors.New("metadata fetch failed")
)

func invalidInput(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

func malformed(kind string, format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedRecord, "%s: %s", kind, fmt.Sprintf(format, args...))
}

// TransactionStage names the submission step a failure happened in.
type TransactionStage string

const (
	StageBlockhash TransactionStage = "blockhash"
	StageAssemble  TransactionStage = "assemble"
	StageSign      TransactionStage = "sign"
	StageBroadcast TransactionStage = "broadcast"
	StageConfirm   TransactionStage = "confirm"
)

// TransactionError is the single failure signal for a submission attempt.
// It always matches ErrTransactionFailed. Signature is set once the
// transaction has been broadcast, in which case it may still land; callers
// must re-query state before resubmitting.
type TransactionError struct {
	Stage     TransactionStage
	Signature *solana.Signature
	Err       error
}

func (e *TransactionError) Error() string {
	if e.Signature != nil {
		return fmt.Sprintf("transaction failed at %s (signature %s): %v", e.Stage, e.Signature.String(), e.Err)
	}
	return fmt.Sprintf("transaction failed at %s: %v", e.Stage, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailed
}
