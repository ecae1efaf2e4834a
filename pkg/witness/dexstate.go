package witness

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

// GlobalDexState is the fixed-size header preceding the batch output,
// consumed bit-exact by the on-chain proof generator (spec §6.2).
type GlobalDexState struct {
	ConfigCode uint64

	InitStateRoot, FinalStateRoot         crypto.Hash
	InitPerpStateRoot, FinalPerpStateRoot crypto.Hash

	StateTreeDepth, PerpTreeDepth uint32
	GlobalExpirationTimestamp    uint32

	NDeposits, NWithdrawals           uint32
	NOutputPositions, NEmptyPositions uint32
	NOutputNotes, NZeroNotes          uint32
}

// Pack lays out the header as 14 field elements in the order the proof
// generator's parser expects (spec §6.2; grounded on
// original_source/.../utils/cairo_output.rs's parse_dex_state reading a
// 14-element slice).
func (s GlobalDexState) Pack() []*big.Int {
	return []*big.Int{
		new(big.Int).SetUint64(s.ConfigCode),
		s.InitStateRoot.Big(),
		s.FinalStateRoot.Big(),
		s.InitPerpStateRoot.Big(),
		s.FinalPerpStateRoot.Big(),
		new(big.Int).SetUint64(uint64(s.StateTreeDepth)),
		new(big.Int).SetUint64(uint64(s.PerpTreeDepth)),
		new(big.Int).SetUint64(uint64(s.GlobalExpirationTimestamp)),
		new(big.Int).SetUint64(uint64(s.NDeposits)),
		new(big.Int).SetUint64(uint64(s.NWithdrawals)),
		new(big.Int).SetUint64(uint64(s.NOutputPositions)),
		new(big.Int).SetUint64(uint64(s.NEmptyPositions)),
		new(big.Int).SetUint64(uint64(s.NOutputNotes)),
		new(big.Int).SetUint64(uint64(s.NZeroNotes)),
	}
}

// DepositRecord packs (amount:64, token:64, _:64) into one field plus a
// pubkey field (spec §6.2).
type DepositRecord struct {
	Amount  uint64
	Token   uint64
	StarkKey common.Address
}

func (d DepositRecord) Pack() []*big.Int {
	packed := shl(d.Amount, 128)
	packed.Or(packed, shl(d.Token, 64))
	return []*big.Int{packed, new(big.Int).SetBytes(d.StarkKey.Bytes())}
}

// WithdrawalRecord mirrors DepositRecord's layout.
type WithdrawalRecord struct {
	Amount  uint64
	Token   uint64
	StarkKey common.Address
}

func (w WithdrawalRecord) Pack() []*big.Int {
	packed := shl(w.Amount, 128)
	packed.Or(packed, shl(w.Token, 64))
	return []*big.Int{packed, new(big.Int).SetBytes(w.StarkKey.Bytes())}
}

// PositionRecord packs (order_side:8, position_size:64, synthetic_token:64,
// index:64) and (last_funding_idx:32, liquidation_price:64, entry_price:64)
// into two fields plus a pubkey field (spec §6.2).
type PositionRecord struct {
	OrderSide       uint8
	PositionSize    uint64
	SyntheticToken  uint64
	Index           uint64
	LastFundingIdx  uint32
	LiquidationPrice uint64
	EntryPrice      uint64
	PositionAddress common.Address
}

func (p PositionRecord) Pack() []*big.Int {
	first := shl(uint64(p.OrderSide), 192)
	first.Or(first, shl(p.PositionSize, 128))
	first.Or(first, shl(p.SyntheticToken, 64))
	first.Or(first, new(big.Int).SetUint64(p.Index))

	second := shl(uint64(p.LastFundingIdx), 128)
	second.Or(second, shl(p.LiquidationPrice, 64))
	second.Or(second, new(big.Int).SetUint64(p.EntryPrice))

	return []*big.Int{first, second, new(big.Int).SetBytes(p.PositionAddress.Bytes())}
}

// NoteRecord packs (index:64, hidden_amount:64, token:64) into one field
// plus commitment and address fields (spec §6.2). hidden_amount is
// amount XOR (blinding mod 2^64).
type NoteRecord struct {
	Index      uint64
	Amount     uint64
	Token      uint64
	Blinding   *big.Int
	Commitment crypto.Hash
	Address    common.Address
}

func (n NoteRecord) Pack() []*big.Int {
	blindingLow := new(big.Int).And(n.Blinding, new(big.Int).SetUint64(^uint64(0))).Uint64()
	hiddenAmount := n.Amount ^ blindingLow

	packed := shl(n.Index, 128)
	packed.Or(packed, shl(hiddenAmount, 64))
	packed.Or(packed, new(big.Int).SetUint64(n.Token))

	return []*big.Int{packed, n.Commitment.Big(), new(big.Int).SetBytes(n.Address.Bytes())}
}

func shl(v uint64, bits uint) *big.Int {
	return new(big.Int).Lsh(new(big.Int).SetUint64(v), bits)
}
