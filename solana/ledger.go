package staking_protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AccountInfo is the raw state of one ledger account.
type AccountInfo struct {
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// KeyedAccount pairs an account with its address.
type KeyedAccount struct {
	Address solana.PublicKey
	Account *AccountInfo
}

// SignatureStatus is the ledger's view of a broadcast transaction. Err is
// non-empty when the transaction landed but failed.
type SignatureStatus struct {
	Confirmation rpc.ConfirmationStatusType
	Err          string
}

func (s *SignatureStatus) Finalized() bool {
	return s.Confirmation == rpc.ConfirmationStatusFinalized
}

// TransactionRecord is one historical transaction touching an address.
type TransactionRecord struct {
	Signature   solana.Signature
	BlockTime   time.Time
	Failed      bool
	Transaction *solana.Transaction
}

// Ledger is the RPC surface the staking client depends on. Absent accounts
// are reported as nil without an error.
type Ledger interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error)
	GetAccounts(ctx context.Context, addresses ...solana.PublicKey) ([]*AccountInfo, error)
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters ...Filter) ([]KeyedAccount, error)
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]KeyedAccount, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// GetSignatureStatus returns nil while the ledger has not seen the signature.
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
	GetTransactionsForAddress(ctx context.Context, address solana.PublicKey, limit int) ([]TransactionRecord, error)
}

const (
	maxMultipleAccounts   = 100
	historyFetchBatchSize = 10
)

// RPCLedger implements Ledger on top of a JSON-RPC client. Every read and
// the broadcast preflight use finalized commitment.
type RPCLedger struct {
	log    *logrus.Entry
	client *rpc.Client
}

func NewRPCLedger(endpoint string) *RPCLedger {
	return NewRPCLedgerWithClient(rpc.New(endpoint))
}

func NewRPCLedgerWithClient(client *rpc.Client) *RPCLedger {
	return &RPCLedger{
		log:    logrus.StandardLogger().WithField("type", "staking/ledger"),
		client: client,
	}
}

func (l *RPCLedger) GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	resp, err := l.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentFinalized,
		Encoding:   solana.EncodingBase64,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to get account info for %s", address)
	}
	if resp == nil || resp.Value == nil {
		return nil, nil
	}
	return toAccountInfo(resp.Value), nil
}

func (l *RPCLedger) GetAccounts(ctx context.Context, addresses ...solana.PublicKey) ([]*AccountInfo, error) {
	out := make([]*AccountInfo, 0, len(addresses))
	for start := 0; start < len(addresses); start += maxMultipleAccounts {
		end := start + maxMultipleAccounts
		if end > len(addresses) {
			end = len(addresses)
		}

		resp, err := l.client.GetMultipleAccountsWithOpts(ctx, addresses[start:end], &rpc.GetMultipleAccountsOpts{
			Commitment: rpc.CommitmentFinalized,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get multiple accounts")
		}
		for _, account := range resp.Value {
			if account == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, toAccountInfo(account))
		}
	}
	return out, nil
}

func (l *RPCLedger) GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters ...Filter) ([]KeyedAccount, error) {
	rpcFilters := make([]rpc.RPCFilter, 0, len(filters))
	for _, f := range filters {
		rpcFilters = append(rpcFilters, f.rpcFilter())
	}

	resp, err := l.client.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentFinalized,
		Encoding:   solana.EncodingBase64,
		Filters:    rpcFilters,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get program accounts for %s", program)
	}

	out := make([]KeyedAccount, 0, len(resp))
	for _, item := range resp {
		if item == nil || item.Account == nil {
			continue
		}
		out = append(out, KeyedAccount{
			Address: item.Pubkey,
			Account: toAccountInfo(item.Account),
		})
	}
	return out, nil
}

func (l *RPCLedger) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]KeyedAccount, error) {
	tokenProgram := solana.TokenProgramID
	resp, err := l.client.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{
			ProgramId: &tokenProgram,
		},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentFinalized,
			Encoding:   solana.EncodingBase64,
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get token accounts for %s", owner)
	}

	out := make([]KeyedAccount, 0, len(resp.Value))
	for _, item := range resp.Value {
		if item == nil {
			continue
		}
		out = append(out, KeyedAccount{
			Address: item.Pubkey,
			Account: toAccountInfo(&item.Account),
		})
	}
	return out, nil
}

func (l *RPCLedger) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	resp, err := l.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, errors.Wrap(err, "failed to get latest blockhash")
	}
	return resp.Value.Blockhash, nil
}

func (l *RPCLedger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to send transaction")
	}
	return sig, nil
}

func (l *RPCLedger) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	resp, err := l.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get signature status for %s", sig)
	}
	if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
		return nil, nil
	}

	status := &SignatureStatus{
		Confirmation: resp.Value[0].ConfirmationStatus,
	}
	if resp.Value[0].Err != nil {
		status.Err = fmt.Sprintf("%v", resp.Value[0].Err)
	}
	return status, nil
}

// GetTransactionsForAddress fetches up to limit recent transactions of the
// address. Transactions that fail to load are skipped.
func (l *RPCLedger) GetTransactionsForAddress(ctx context.Context, address solana.PublicKey, limit int) ([]TransactionRecord, error) {
	log := l.log.WithFields(logrus.Fields{
		"method":  "GetTransactionsForAddress",
		"address": address.String(),
	})

	signatures, err := l.client.GetSignaturesForAddressWithOpts(ctx, address, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch transaction signatures for %s", address)
	}

	records := make([]*TransactionRecord, len(signatures))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyFetchBatchSize)
	for i, sigInfo := range signatures {
		i, sigInfo := i, sigInfo
		g.Go(func() error {
			version := uint64(0)
			tx, err := l.client.GetTransaction(gctx, sigInfo.Signature, &rpc.GetTransactionOpts{
				Encoding:                       solana.EncodingBase64,
				Commitment:                     rpc.CommitmentFinalized,
				MaxSupportedTransactionVersion: &version,
			})
			if err != nil {
				log.WithError(err).WithField("signature", sigInfo.Signature.String()).Warn("failed to fetch transaction, skipping")
				return nil
			}
			if tx == nil || tx.Transaction == nil {
				return nil
			}
			parsed, err := tx.Transaction.GetTransaction()
			if err != nil {
				log.WithError(err).WithField("signature", sigInfo.Signature.String()).Warn("failed to decode transaction, skipping")
				return nil
			}

			record := &TransactionRecord{
				Signature:   sigInfo.Signature,
				Failed:      sigInfo.Err != nil,
				Transaction: parsed,
			}
			if tx.BlockTime != nil {
				record.BlockTime = tx.BlockTime.Time()
			}

			mu.Lock()
			records[i] = record
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]TransactionRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func toAccountInfo(account *rpc.Account) *AccountInfo {
	info := &AccountInfo{
		Owner:    account.Owner,
		Lamports: account.Lamports,
	}
	if account.Data != nil {
		info.Data = account.Data.GetBinary()
	}
	return info
}
