package staking_protocol

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const metadataFetchConcurrency = 8

// NftDescriptor is a displayable NFT joined from ledger and metadata state.
type NftDescriptor struct {
	Mint         solana.PublicKey    `json:"mint"`
	TokenAccount solana.PublicKey    `json:"tokenAccount"`
	Name         string              `json:"name"`
	Symbol       string              `json:"symbol"`
	Image        string              `json:"image"`
	Description  string              `json:"description,omitempty"`
	Attributes   []MetadataAttribute `json:"attributes,omitempty"`
	Ordinal      int                 `json:"ordinal"`
	HasOrdinal   bool                `json:"hasOrdinal"`
}

// StakedNft is an active stake record joined with its NFT.
type StakedNft struct {
	Address   solana.PublicKey `json:"address"`
	Record    *StakeRecord     `json:"record"`
	Nft       NftDescriptor    `json:"nft"`
	UnlocksAt time.Time        `json:"unlocksAt"`
}

// Discovery reconstructs caller-visible NFT state from the ledger. Failures
// of a single item drop that item rather than the whole result.
type Discovery struct {
	log     *logrus.Entry
	ledger  Ledger
	scanner *Scanner
	fetcher MetadataFetcher
}

func NewDiscovery(ledger Ledger, fetcher MetadataFetcher) *Discovery {
	return &Discovery{
		log:     logrus.StandardLogger().WithField("type", "staking/discovery"),
		ledger:  ledger,
		scanner: NewScanner(ledger, ProgramID),
		fetcher: fetcher,
	}
}

type mintCandidate struct {
	mint         solana.PublicKey
	tokenAccount solana.PublicKey
}

// OwnedNfts lists the single-unit, zero-decimal tokens of owner whose
// metadata symbol matches collection, sorted by name. An empty collection
// accepts every symbol.
func (d *Discovery) OwnedNfts(ctx context.Context, owner solana.PublicKey, collection string) ([]NftDescriptor, error) {
	log := d.log.WithFields(logrus.Fields{
		"method":     "OwnedNfts",
		"owner":      owner.String(),
		"collection": collection,
	})

	accounts, err := d.ledger.GetTokenAccountsByOwner(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list token accounts")
	}

	var candidates []mintCandidate
	for _, account := range accounts {
		var token TokenAccount
		if err := token.Unmarshal(account.Account.Data); err != nil {
			log.WithError(err).WithField("address", account.Address.String()).Warn("skipping undecodable token account")
			continue
		}
		if token.Amount != 1 {
			continue
		}
		candidates = append(candidates, mintCandidate{mint: token.Mint, tokenAccount: account.Address})
	}
	if len(candidates) == 0 {
		return []NftDescriptor{}, nil
	}

	mints := make([]solana.PublicKey, len(candidates))
	for i, c := range candidates {
		mints[i] = c.mint
	}
	mintInfos, err := d.ledger.GetAccounts(ctx, mints...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read mints")
	}

	var nfts []mintCandidate
	for i, info := range mintInfos {
		if i >= len(candidates) || info == nil {
			continue
		}
		var mint Mint
		if err := mint.Unmarshal(info.Data); err != nil {
			log.WithError(err).WithField("mint", candidates[i].mint.String()).Warn("skipping undecodable mint")
			continue
		}
		if mint.Decimals == 0 {
			nfts = append(nfts, candidates[i])
		}
	}

	out, err := d.describe(ctx, nfts, collection)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// StakedNfts lists the active stake records of owner under pool. The
// program accepted these NFTs at stake time, so no symbol filter applies.
func (d *Discovery) StakedNfts(ctx context.Context, owner, poolAddress solana.PublicKey, pool *PoolConfig) ([]StakedNft, error) {
	log := d.log.WithFields(logrus.Fields{
		"method": "StakedNfts",
		"owner":  owner.String(),
	})

	records, err := d.scanner.ScanStakeRecords(ctx, owner, poolAddress)
	if err != nil {
		return nil, err
	}

	var active []StakedRecord
	for _, r := range records {
		if !r.Record.Unstaked {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return []StakedNft{}, nil
	}

	custody := make([]solana.PublicKey, len(active))
	for i, r := range active {
		custody[i] = r.Record.Account
	}
	custodyInfos, err := d.ledger.GetAccounts(ctx, custody...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read custody accounts")
	}

	var candidates []mintCandidate
	byMint := make(map[solana.PublicKey]StakedRecord, len(active))
	for i, info := range custodyInfos {
		if i >= len(active) {
			break
		}
		if info == nil {
			log.WithField("address", active[i].Address.String()).Warn("custody account missing, skipping")
			continue
		}
		var token TokenAccount
		if err := token.Unmarshal(info.Data); err != nil {
			log.WithError(err).WithField("address", active[i].Address.String()).Warn("skipping undecodable custody account")
			continue
		}
		candidates = append(candidates, mintCandidate{mint: token.Mint, tokenAccount: active[i].Record.Account})
		byMint[token.Mint] = active[i]
	}

	described, err := d.describe(ctx, candidates, "")
	if err != nil {
		return nil, err
	}

	out := make([]StakedNft, 0, len(described))
	for _, nft := range described {
		r := byMint[nft.Mint]
		staked := StakedNft{
			Address: r.Address,
			Record:  r.Record,
			Nft:     nft,
		}
		if pool != nil {
			staked.UnlocksAt = time.Unix(r.Record.UnlocksAt(pool), 0).UTC()
		}
		out = append(out, staked)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Nft.Name < out[j].Nft.Name
	})
	return out, nil
}

// describe resolves on-chain and off-chain metadata for each candidate,
// dropping candidates outside collection or with unreachable metadata.
func (d *Discovery) describe(ctx context.Context, candidates []mintCandidate, collection string) ([]NftDescriptor, error) {
	if len(candidates) == 0 {
		return []NftDescriptor{}, nil
	}

	addresses := make([]solana.PublicKey, 0, len(candidates))
	for _, c := range candidates {
		addr, err := DeriveMetadataAddress(c.mint)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	infos, err := d.ledger.GetAccounts(ctx, addresses...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metadata accounts")
	}

	results := make([]*NftDescriptor, len(candidates))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataFetchConcurrency)
	for i, info := range infos {
		if i >= len(candidates) || info == nil {
			continue
		}
		i, c := i, candidates[i]
		meta, err := ParseTokenMetadata(info.Data)
		if err != nil {
			d.log.WithError(err).WithField("mint", c.mint.String()).Warn("skipping undecodable metadata")
			continue
		}
		if collection != "" && meta.Symbol != collection {
			continue
		}

		g.Go(func() error {
			doc, err := d.fetcher.Fetch(gctx, meta.URI)
			if err != nil {
				d.log.WithError(err).WithField("mint", c.mint.String()).Warn("skipping nft with unreachable metadata")
				return nil
			}

			nft := &NftDescriptor{
				Mint:         c.mint,
				TokenAccount: c.tokenAccount,
				Name:         doc.Name,
				Symbol:       meta.Symbol,
				Image:        doc.Image,
				Description:  doc.Description,
				Attributes:   doc.Attributes,
			}
			if nft.Name == "" {
				nft.Name = meta.Name
			}
			nft.Ordinal, nft.HasOrdinal = ParseOrdinal(nft.Name)

			mu.Lock()
			results[i] = nft
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]NftDescriptor, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}
