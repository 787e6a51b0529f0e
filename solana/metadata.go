package staking_protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TokenMetadata is the leading part of a Metaplex metadata account.
type TokenMetadata struct {
	Key             uint8
	UpdateAuthority solana.PublicKey
	Mint            solana.PublicKey
	Name            string
	Symbol          string
	URI             string
}

func (m *TokenMetadata) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if m.Key, err = decoder.ReadUint8(); err != nil {
		return err
	}
	for _, key := range []*solana.PublicKey{&m.UpdateAuthority, &m.Mint} {
		raw, err := decoder.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		*key = solana.PublicKeyFromBytes(raw)
	}
	for _, s := range []*string{&m.Name, &m.Symbol, &m.URI} {
		v, err := readBorshString(decoder)
		if err != nil {
			return err
		}
		*s = strings.TrimRight(v, "\x00")
	}
	return nil
}

func (m *TokenMetadata) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint8(m.Key); err != nil {
		return err
	}
	if err := encoder.WriteBytes(m.UpdateAuthority[:], false); err != nil {
		return err
	}
	if err := encoder.WriteBytes(m.Mint[:], false); err != nil {
		return err
	}
	for _, s := range []string{m.Name, m.Symbol, m.URI} {
		if err := writeBorshString(encoder, s); err != nil {
			return err
		}
	}
	return nil
}

// ParseTokenMetadata decodes a Metaplex metadata account buffer.
func ParseTokenMetadata(data []byte) (*TokenMetadata, error) {
	var m TokenMetadata
	if err := m.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, malformed("metadata", "%v", err)
	}
	return &m, nil
}

// MetadataAttribute is one trait entry of an off-chain metadata document.
type MetadataAttribute struct {
	TraitType string          `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

// MetadataDocument is the off-chain JSON document a metadata URI points to.
type MetadataDocument struct {
	Name        string              `json:"name"`
	Symbol      string              `json:"symbol"`
	Description string              `json:"description,omitempty"`
	Image       string              `json:"image"`
	Attributes  []MetadataAttribute `json:"attributes,omitempty"`
}

// MetadataFetcher resolves a metadata URI to its document.
type MetadataFetcher interface {
	Fetch(ctx context.Context, uri string) (*MetadataDocument, error)
}

const (
	defaultMetadataTimeout  = 15 * time.Second
	defaultMetadataRetries  = 3
	maxMetadataDocumentSize = 1 << 20
)

// HTTPMetadataFetcher fetches documents over HTTP(S). GETs are idempotent,
// so transient failures are retried with exponential backoff.
type HTTPMetadataFetcher struct {
	log        *logrus.Entry
	client     *http.Client
	maxRetries uint64
}

func NewHTTPMetadataFetcher(client *http.Client) *HTTPMetadataFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultMetadataTimeout}
	}
	return &HTTPMetadataFetcher{
		log:        logrus.StandardLogger().WithField("type", "staking/metadata"),
		client:     client,
		maxRetries: defaultMetadataRetries,
	}
}

func (f *HTTPMetadataFetcher) Fetch(ctx context.Context, uri string) (*MetadataDocument, error) {
	log := f.log.WithFields(logrus.Fields{
		"method": "Fetch",
		"uri":    uri,
	})

	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return nil, errors.Wrapf(ErrMetadataFetchFailed, "unsupported uri %q", uri)
	}

	var doc MetadataDocument
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataDocumentSize))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return backoff.Permanent(errors.Wrap(err, "failed to parse metadata document"))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		log.WithError(err).Debugf("retrying metadata fetch in %s", wait)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, errors.Wrapf(ErrMetadataFetchFailed, "%s: %v", uri, err)
	}
	return &doc, nil
}

var leadingNonDigits = regexp.MustCompile(`^\D+`)

// ParseOrdinal extracts the edition number from a display name such as
// "Zoku #123 - Gold". Names without a number yield ok=false.
func ParseOrdinal(name string) (int, bool) {
	rest := leadingNonDigits.ReplaceAllString(name, "")
	rest = strings.SplitN(rest, " - ", 2)[0]
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return n, true
}
