package staking_protocol

import (
	"bytes"
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Filter is a structural predicate over an account's raw data. Filters are
// evaluated by the ledger and re-checked locally.
type Filter interface {
	Matches(data []byte) bool
	rpcFilter() rpc.RPCFilter
}

type dataSizeFilter uint64

// DataSizeFilter matches buffers of exactly size bytes.
func DataSizeFilter(size uint64) Filter {
	return dataSizeFilter(size)
}

func (f dataSizeFilter) Matches(data []byte) bool {
	return uint64(len(data)) == uint64(f)
}

func (f dataSizeFilter) rpcFilter() rpc.RPCFilter {
	return rpc.RPCFilter{DataSize: uint64(f)}
}

type memcmpFilter struct {
	offset uint64
	bytes  []byte
}

// MemcmpFilter matches buffers holding want at offset.
func MemcmpFilter(offset uint64, want []byte) Filter {
	return memcmpFilter{offset: offset, bytes: append([]byte(nil), want...)}
}

func (f memcmpFilter) Matches(data []byte) bool {
	end := f.offset + uint64(len(f.bytes))
	if end > uint64(len(data)) {
		return false
	}
	return bytes.Equal(data[f.offset:end], f.bytes)
}

func (f memcmpFilter) rpcFilter() rpc.RPCFilter {
	return rpc.RPCFilter{
		Memcmp: &rpc.RPCFilterMemcmp{
			Offset: f.offset,
			Bytes:  solana.Base58(f.bytes),
		},
	}
}

// StakeRecordFilters selects the StakeData accounts of owner under pool.
func StakeRecordFilters(owner, pool solana.PublicKey) []Filter {
	return []Filter{
		DataSizeFilter(StakeRecordSize),
		MemcmpFilter(StakeRecordOwnerOffset, owner.Bytes()),
		MemcmpFilter(StakeRecordPoolOffset, pool.Bytes()),
	}
}

// Scanner queries accounts owned by the staking program.
type Scanner struct {
	log     *logrus.Entry
	ledger  Ledger
	program solana.PublicKey
}

func NewScanner(ledger Ledger, program solana.PublicKey) *Scanner {
	return &Scanner{
		log:     logrus.StandardLogger().WithField("type", "staking/scanner"),
		ledger:  ledger,
		program: program,
	}
}

// Scan returns every program account matching all filters. Each call is a
// fresh snapshot and result order is unspecified.
func (s *Scanner) Scan(ctx context.Context, filters ...Filter) ([]KeyedAccount, error) {
	if len(filters) == 0 {
		return nil, invalidInput("refusing unfiltered program account scan")
	}

	log := s.log.WithFields(logrus.Fields{
		"method":  "Scan",
		"program": s.program.String(),
	})

	accounts, err := s.ledger.GetProgramAccounts(ctx, s.program, filters...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan program accounts")
	}

	seen := make(map[solana.PublicKey]struct{}, len(accounts))
	out := make([]KeyedAccount, 0, len(accounts))
	for _, account := range accounts {
		if account.Account == nil {
			continue
		}
		if _, ok := seen[account.Address]; ok {
			continue
		}
		if !matchesAll(account.Account.Data, filters) {
			log.WithField("address", account.Address.String()).Warn("ledger returned account outside filter set, dropping")
			continue
		}
		seen[account.Address] = struct{}{}
		out = append(out, account)
	}
	return out, nil
}

// StakedRecord is a decoded StakeData account and its address.
type StakedRecord struct {
	Address solana.PublicKey
	Record  *StakeRecord
}

// ScanStakeRecords returns the decoded StakeData accounts of owner under
// pool, both active and unstaked.
func (s *Scanner) ScanStakeRecords(ctx context.Context, owner, pool solana.PublicKey) ([]StakedRecord, error) {
	accounts, err := s.Scan(ctx, StakeRecordFilters(owner, pool)...)
	if err != nil {
		return nil, err
	}

	out := make([]StakedRecord, 0, len(accounts))
	for _, account := range accounts {
		record, err := ParseAccount_StakeData(account.Account.Data)
		if err != nil {
			s.log.WithError(err).WithField("address", account.Address.String()).Warn("skipping undecodable stake record")
			continue
		}
		out = append(out, StakedRecord{Address: account.Address, Record: record})
	}
	return out, nil
}

func matchesAll(data []byte, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(data) {
			return false
		}
	}
	return true
}
