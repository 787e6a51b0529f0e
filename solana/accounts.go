package staking_protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

const (
	StakeRecordSize = (8 + // discriminator
		1 + // unstaked
		32 + // owner
		32 + // pool
		32 + // account
		8 + // stake_time
		1) // withdrawn_number

	StakeRecordOwnerOffset   = 9
	StakeRecordPoolOffset    = 41
	StakeRecordAccountOffset = 73
)

// StakeRecord is the on-chain StakeData account for one staked NFT.
type StakeRecord struct {
	Unstaked        bool
	Owner           solana.PublicKey
	Pool            solana.PublicKey
	Account         solana.PublicKey // pool custody account holding the NFT
	StakeTime       int64
	WithdrawnNumber uint8
}

func (r *StakeRecord) Marshal() []byte {
	b := make([]byte, StakeRecordSize)

	var offset int
	putBytes(b, Account_StakeData[:], &offset)
	putBool(b, r.Unstaked, &offset)
	putKey(b, r.Owner, &offset)
	putKey(b, r.Pool, &offset)
	putKey(b, r.Account, &offset)
	putInt64(b, r.StakeTime, &offset)
	putUint8(b, r.WithdrawnNumber, &offset)

	return b
}

func (r *StakeRecord) Unmarshal(data []byte) error {
	if len(data) != StakeRecordSize {
		return malformed("stake record", "expected %d bytes, got %d", StakeRecordSize, len(data))
	}
	if !bytes.Equal(data[:8], Account_StakeData[:]) {
		return malformed("stake record", "unexpected discriminator %x", data[:8])
	}

	offset := 8
	getBool(data, &r.Unstaked, &offset)
	getKey(data, &r.Owner, &offset)
	getKey(data, &r.Pool, &offset)
	getKey(data, &r.Account, &offset)
	getInt64(data, &r.StakeTime, &offset)
	getUint8(data, &r.WithdrawnNumber, &offset)

	return nil
}

// UnlocksAt is the earliest time the record may be unstaked. Values past
// the int64 range saturate at math.MaxInt64.
func (r *StakeRecord) UnlocksAt(pool *PoolConfig) int64 {
	var lock int64
	if w := int64(pool.Withdrawable); pool.Period > 0 && w > 0 {
		if pool.Period > math.MaxInt64/w {
			return math.MaxInt64
		}
		lock = pool.Period * w
	}
	if r.StakeTime > 0 && lock > math.MaxInt64-r.StakeTime {
		return math.MaxInt64
	}
	return r.StakeTime + lock
}

func (r *StakeRecord) String() string {
	return fmt.Sprintf(
		"StakeData{unstaked=%t,owner=%s,pool=%s,account=%s,stake_time=%s,withdrawn_number=%d}",
		r.Unstaked,
		r.Owner,
		r.Pool,
		r.Account,
		time.Unix(r.StakeTime, 0).UTC().String(),
		r.WithdrawnNumber,
	)
}

// ParseAccount_StakeData decodes a StakeData account buffer.
func ParseAccount_StakeData(data []byte) (*StakeRecord, error) {
	var r StakeRecord
	if err := r.Unmarshal(data); err != nil {
		return nil, err
	}
	return &r, nil
}

// PoolConfig is the on-chain Pool account. Its trailing collection string
// makes it variable-length, so it is decoded with a borsh decoder.
type PoolConfig struct {
	Owner           solana.PublicKey
	Rand            solana.PublicKey
	RewardMint      solana.PublicKey
	RewardAccount   solana.PublicKey
	RewardAmount    uint64
	Period          int64
	Withdrawable    uint8
	StakeCollection string
	Bump            uint8
}

func (p *PoolConfig) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	disc, err := decoder.ReadNBytes(8)
	if err != nil {
		return err
	}
	if !bytes.Equal(disc, Account_Pool[:]) {
		return malformed("pool", "unexpected discriminator %x", disc)
	}

	for _, key := range []*solana.PublicKey{&p.Owner, &p.Rand, &p.RewardMint, &p.RewardAccount} {
		raw, err := decoder.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		*key = solana.PublicKeyFromBytes(raw)
	}
	if p.RewardAmount, err = decoder.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if p.Period, err = decoder.ReadInt64(binary.LittleEndian); err != nil {
		return err
	}
	if p.Withdrawable, err = decoder.ReadUint8(); err != nil {
		return err
	}
	if p.StakeCollection, err = readBorshString(decoder); err != nil {
		return err
	}
	if p.Bump, err = decoder.ReadUint8(); err != nil {
		return err
	}
	return nil
}

func (p *PoolConfig) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(Account_Pool[:], false); err != nil {
		return err
	}
	for _, key := range []solana.PublicKey{p.Owner, p.Rand, p.RewardMint, p.RewardAccount} {
		if err := encoder.WriteBytes(key[:], false); err != nil {
			return err
		}
	}
	if err := encoder.WriteUint64(p.RewardAmount, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteInt64(p.Period, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteUint8(p.Withdrawable); err != nil {
		return err
	}
	if err := writeBorshString(encoder, p.StakeCollection); err != nil {
		return err
	}
	return encoder.WriteUint8(p.Bump)
}

// Validate checks the invariants the client relies on for accrual math.
func (p *PoolConfig) Validate() error {
	if p.Period <= 0 {
		return malformed("pool", "non-positive period %d", p.Period)
	}
	return nil
}

// ParseAccount_Pool decodes and validates a Pool account buffer.
func ParseAccount_Pool(data []byte) (*PoolConfig, error) {
	var p PoolConfig
	if err := p.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		if errors.Is(err, ErrMalformedRecord) {
			return nil, err
		}
		return nil, malformed("pool", "%v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func readBorshString(decoder *bin.Decoder) (string, error) {
	length, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	if int(length) > decoder.Remaining() {
		return "", errors.Errorf("string length %d exceeds remaining %d bytes", length, decoder.Remaining())
	}
	raw, err := decoder.ReadNBytes(int(length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func writeBorshString(encoder *bin.Encoder, s string) error {
	if err := encoder.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return encoder.WriteBytes([]byte(s), false)
}

func putBytes(dst []byte, v []byte, offset *int) {
	copy(dst[*offset:], v)
	*offset += len(v)
}

func putKey(dst []byte, v solana.PublicKey, offset *int) {
	copy(dst[*offset:], v[:])
	*offset += solana.PublicKeyLength
}
func getKey(src []byte, dst *solana.PublicKey, offset *int) {
	*dst = solana.PublicKeyFromBytes(src[*offset : *offset+solana.PublicKeyLength])
	*offset += solana.PublicKeyLength
}

func putBool(dst []byte, v bool, offset *int) {
	if v {
		dst[*offset] = 1
	}
	*offset += 1
}
func getBool(src []byte, dst *bool, offset *int) {
	*dst = src[*offset] != 0
	*offset += 1
}

func putUint8(dst []byte, v uint8, offset *int) {
	dst[*offset] = v
	*offset += 1
}
func getUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[*offset]
	*offset += 1
}

func getUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src[*offset:])
	*offset += 8
}

func putInt64(dst []byte, v int64, offset *int) {
	binary.LittleEndian.PutUint64(dst[*offset:], uint64(v))
	*offset += 8
}
func getInt64(src []byte, dst *int64, offset *int) {
	*dst = int64(binary.LittleEndian.Uint64(src[*offset:]))
	*offset += 8
}
