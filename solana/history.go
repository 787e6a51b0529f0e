package staking_protocol

import (
	"context"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

const DefaultHistoryLimit = 100

// ActivityEvent is one staking program instruction found in a transaction.
type ActivityEvent struct {
	Signature   solana.Signature `json:"signature"`
	Timestamp   time.Time        `json:"timestamp"`
	Type        string           `json:"type"`
	Owner       solana.PublicKey `json:"owner"`
	Pool        solana.PublicKey `json:"pool"`
	StakeRecord solana.PublicKey `json:"stakeRecord,omitempty"`
	Failed      bool             `json:"failed"`
}

// ClassifyTransaction extracts the staking program instructions of a
// transaction, identified by their discriminators.
func ClassifyTransaction(record *TransactionRecord) []ActivityEvent {
	tx := record.Transaction
	if tx == nil {
		return nil
	}
	keys := tx.Message.AccountKeys

	var events []ActivityEvent
	for _, ix := range tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(ProgramID) {
			continue
		}
		if len(ix.Data) < 8 {
			continue
		}
		var disc [8]byte
		copy(disc[:], ix.Data[:8])
		name, ok := InstructionIDToName(disc)
		if !ok {
			continue
		}

		account := func(i int) solana.PublicKey {
			if i >= len(ix.Accounts) || int(ix.Accounts[i]) >= len(keys) {
				return solana.PublicKey{}
			}
			return keys[ix.Accounts[i]]
		}

		event := ActivityEvent{
			Signature: record.Signature,
			Timestamp: record.BlockTime,
			Type:      name,
			Owner:     account(0),
			Pool:      account(1),
			Failed:    record.Failed,
		}
		if disc != Instruction_InitPool {
			event.StakeRecord = account(2)
		}
		events = append(events, event)
	}
	return events
}

// History returns the staking activity of the session owner, newest first.
func (s *Session) History(ctx context.Context, limit int) ([]ActivityEvent, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	records, err := s.ledger.GetTransactionsForAddress(ctx, s.Owner(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch transaction history")
	}

	events := make([]ActivityEvent, 0)
	for i := range records {
		events = append(events, ClassifyTransaction(&records[i])...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events, nil
}
