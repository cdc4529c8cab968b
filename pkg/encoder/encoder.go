package encoder

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

/*
Packed request layout. Every field is written at its minimal fixed width and
nothing is ABI padded or type tagged:

	| selector | name           | amount   | target address | timestamp |
	| 4 bytes  | len(name) raw  | 16 bytes | 20 bytes       | 16 bytes  |

amount and timestamp are big-endian and left padded with zeros. The verifier
contract rebuilds the same bytes from its typed arguments, so widths and
ordering must not change.
*/

const (
	SelectorLength  = 4
	AmountLength    = 16
	AddressLength   = common.AddressLength
	TimestampLength = 16

	// FixedLength is the size of a packed payload excluding the name.
	FixedLength = SelectorLength + AmountLength + AddressLength + TimestampLength
)

var (
	ErrInvalidAddress = errors.New("invalid target address")
	ErrInvalidHex     = errors.New("invalid hex")
	ErrEmptyName      = errors.New("name cannot be empty")
	ErrInvalidAmount  = errors.New("amount must be an unsigned 128-bit integer")
)

// maxAmount is 2^128 - 1.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Selector is the 4-byte function identifier of the on-chain entry point.
type Selector [SelectorLength]byte

// ParseSelector decodes an 8 character hex selector, with or without a 0x prefix.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	raw, err := hex.DecodeString(strip0x(s))
	if err != nil {
		return sel, fmt.Errorf("%w: selector %q: %v", ErrInvalidHex, s, err)
	}
	if len(raw) != SelectorLength {
		return sel, fmt.Errorf("%w: selector %q must be %d bytes, got %d", ErrInvalidHex, s, SelectorLength, len(raw))
	}
	copy(sel[:], raw)
	return sel, nil
}

func (s Selector) Hex() string {
	return hex.EncodeToString(s[:])
}

func (s Selector) String() string {
	return s.Hex()
}

// Request is the set of typed parameters signed for a single action.
type Request struct {
	Selector      Selector
	Name          string
	Amount        *big.Int // nil is treated as zero
	TargetAddress string
	Timestamp     uint64
}

// PackedPayload is the canonical byte encoding of a Request.
type PackedPayload struct {
	Data      []byte
	Timestamp uint64
}

// Hex returns the payload as lowercase hex without a 0x prefix.
func (p *PackedPayload) Hex() string {
	return hex.EncodeToString(p.Data)
}

// Encode packs the request. It performs no I/O and the same request always
// yields the same bytes.
func Encode(req *Request) (*PackedPayload, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if len(req.Name) == 0 {
		return nil, ErrEmptyName
	}

	amountBlock, err := AmountBlock(req.Amount)
	if err != nil {
		return nil, err
	}

	address, err := ParseAddress(req.TargetAddress)
	if err != nil {
		return nil, err
	}

	timestampBlock := TimestampBlock(req.Timestamp)

	data := make([]byte, 0, FixedLength+len(req.Name))
	data = append(data, req.Selector[:]...)
	data = append(data, req.Name...)
	data = append(data, amountBlock...)
	data = append(data, address.Bytes()...)
	data = append(data, timestampBlock...)

	return &PackedPayload{
		Data:      data,
		Timestamp: req.Timestamp,
	}, nil
}

// EncodeHex is Encode for callers holding the selector as a hex string.
func EncodeHex(selectorHex string, name string, amount *big.Int, targetAddress string, timestamp uint64) (*PackedPayload, error) {
	sel, err := ParseSelector(selectorHex)
	if err != nil {
		return nil, err
	}
	return Encode(&Request{
		Selector:      sel,
		Name:          name,
		Amount:        amount,
		TargetAddress: targetAddress,
		Timestamp:     timestamp,
	})
}

// AmountBlock renders amount as a 16-byte big-endian block.
func AmountBlock(amount *big.Int) ([]byte, error) {
	block := make([]byte, AmountLength)
	if amount == nil {
		return block, nil
	}
	if amount.Sign() < 0 || amount.Cmp(maxAmount) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.String())
	}
	return amount.FillBytes(block), nil
}

// TimestampBlock renders ts as a 16-byte big-endian block. The upper 8 bytes are always zero.
func TimestampBlock(ts uint64) []byte {
	block := make([]byte, TimestampLength)
	binary.BigEndian.PutUint64(block[TimestampLength-8:], ts)
	return block
}

// ParseAddress accepts a 20-byte hex address with or without a 0x prefix, in any case.
func ParseAddress(s string) (common.Address, error) {
	raw, err := hex.DecodeString(strip0x(strings.TrimSpace(s)))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %q is not hex: %v", ErrInvalidAddress, s, err)
	}
	if len(raw) != AddressLength {
		return common.Address{}, fmt.Errorf("%w: %q must be %d bytes, got %d", ErrInvalidAddress, s, AddressLength, len(raw))
	}
	return common.BytesToAddress(raw), nil
}

// DecodedPayload holds the fields of a packed payload split back out.
type DecodedPayload struct {
	Selector      Selector
	Name          []byte
	Amount        *big.Int
	TargetAddress common.Address
	Timestamp     uint64
}

// Decode splits data produced by Encode. The name carries no length prefix,
// so its byte length must be supplied.
func Decode(data []byte, nameLen int) (*DecodedPayload, error) {
	if nameLen < 1 {
		return nil, ErrEmptyName
	}
	if len(data) != FixedLength+nameLen {
		return nil, fmt.Errorf("payload length %d does not match name length %d (want %d)", len(data), nameLen, FixedLength+nameLen)
	}

	offset := 0
	next := func(n int) []byte {
		b := data[offset : offset+n]
		offset += n
		return b
	}

	out := &DecodedPayload{}
	copy(out.Selector[:], next(SelectorLength))
	out.Name = append([]byte(nil), next(nameLen)...)
	out.Amount = new(big.Int).SetBytes(next(AmountLength))
	out.TargetAddress = common.BytesToAddress(next(AddressLength))

	tsBlock := next(TimestampLength)
	for _, b := range tsBlock[:TimestampLength-8] {
		if b != 0 {
			return nil, fmt.Errorf("timestamp block overflows 64 bits")
		}
	}
	out.Timestamp = binary.BigEndian.Uint64(tsBlock[TimestampLength-8:])

	return out, nil
}

// DecodeHex decodes a hex payload (with or without 0x) and splits it.
func DecodeHex(payloadHex string, nameLen int) (*DecodedPayload, error) {
	data, err := hex.DecodeString(strip0x(payloadHex))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidHex, err)
	}
	return Decode(data, nameLen)
}

func strip0x(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
