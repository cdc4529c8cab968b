package encoder

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddress       = "0xb54e978a34Af50228a3564662dB6005E9fB04f5a"
	testTimestamp     = uint64(1701862739)
	expectedVectorHex = "cb62320d" +
		"6869" +
		"000000000000000000f8b0a10e470000" +
		"b54e978a34af50228a3564662db6005e9fb04f5a" +
		"00000000000000000000000065705d53"
)

func mustSelector(t *testing.T, s string) Selector {
	sel, err := ParseSelector(s)
	require.NoError(t, err)
	return sel
}

func Test_Encode_KnownVector(t *testing.T) {
	payload, err := EncodeHex("cb62320d", "hi", big.NewInt(70000000000000000), testAddress, testTimestamp)
	require.NoError(t, err)

	assert.Equal(t, expectedVectorHex, payload.Hex())
	assert.Equal(t, testTimestamp, payload.Timestamp)
	assert.Len(t, payload.Data, FixedLength+2)
}

func Test_Encode_Deterministic(t *testing.T) {
	req := &Request{
		Selector:      mustSelector(t, "bad9a87d"),
		Name:          "alice",
		Amount:        big.NewInt(12345),
		TargetAddress: testAddress,
		Timestamp:     42,
	}

	first, err := Encode(req)
	require.NoError(t, err)
	second, err := Encode(req)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first.Data, second.Data))
}

func Test_Encode_Widths(t *testing.T) {
	t.Run("zero amount and timestamp still take 16 bytes", func(t *testing.T) {
		payload, err := Encode(&Request{
			Selector:      mustSelector(t, "8580974c"),
			Name:          "n",
			Amount:        big.NewInt(0),
			TargetAddress: testAddress,
			Timestamp:     0,
		})
		require.NoError(t, err)

		amountStart := SelectorLength + 1
		assert.Equal(t, make([]byte, AmountLength), payload.Data[amountStart:amountStart+AmountLength])

		tsStart := len(payload.Data) - TimestampLength
		assert.Equal(t, make([]byte, TimestampLength), payload.Data[tsStart:])
	})

	t.Run("nil amount encodes as zero", func(t *testing.T) {
		withNil, err := EncodeHex("8580974c", "n", nil, testAddress, 1)
		require.NoError(t, err)
		withZero, err := EncodeHex("8580974c", "n", big.NewInt(0), testAddress, 1)
		require.NoError(t, err)
		assert.Equal(t, withZero.Data, withNil.Data)
	})

	t.Run("max amount fills the block", func(t *testing.T) {
		block, err := AmountBlock(new(big.Int).Set(maxAmount))
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{0xff}, AmountLength), block)
	})

	t.Run("max timestamp", func(t *testing.T) {
		block := TimestampBlock(^uint64(0))
		assert.Equal(t, append(make([]byte, 8), bytes.Repeat([]byte{0xff}, 8)...), block)
	})
}

func Test_Encode_NameIsNotPadded(t *testing.T) {
	for _, name := range []string{"a", "hi", "こんにちは", strings.Repeat("x", 100)} {
		payload, err := EncodeHex("68670601", name, big.NewInt(1), testAddress, 1)
		require.NoError(t, err)

		assert.Len(t, payload.Data, FixedLength+len([]byte(name)))
		assert.Equal(t, []byte(name), payload.Data[SelectorLength:SelectorLength+len(name)])
	}
}

func Test_Encode_Address(t *testing.T) {
	lower := strings.ToLower(testAddress)
	upper := "0x" + strings.ToUpper(testAddress[2:])
	noPrefix := testAddress[2:]

	var outputs [][]byte
	for _, addr := range []string{testAddress, lower, upper, noPrefix, "0X" + noPrefix} {
		payload, err := EncodeHex("cb62320d", "hi", big.NewInt(1), addr, 1)
		require.NoError(t, err, addr)
		outputs = append(outputs, payload.Data)
	}
	for _, out := range outputs[1:] {
		assert.Equal(t, outputs[0], out)
	}

	invalid := []string{
		"",
		"0x",
		testAddress[:40],   // 19 bytes
		testAddress + "00", // 21 bytes
		testAddress[:41],   // odd length
		"0xzz4e978a34af50228a3564662db6005e9fb04f5a",
	}
	for _, addr := range invalid {
		_, err := EncodeHex("cb62320d", "hi", big.NewInt(1), addr, 1)
		assert.True(t, errors.Is(err, ErrInvalidAddress), "address %q: %v", addr, err)
	}
}

func Test_Encode_Errors(t *testing.T) {
	t.Run("empty name", func(t *testing.T) {
		_, err := EncodeHex("cb62320d", "", big.NewInt(1), testAddress, 1)
		assert.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("bad selector hex", func(t *testing.T) {
		_, err := EncodeHex("zz62320d", "hi", big.NewInt(1), testAddress, 1)
		assert.ErrorIs(t, err, ErrInvalidHex)
	})

	t.Run("selector wrong width", func(t *testing.T) {
		_, err := EncodeHex("cb6232", "hi", big.NewInt(1), testAddress, 1)
		assert.ErrorIs(t, err, ErrInvalidHex)
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := EncodeHex("cb62320d", "hi", big.NewInt(-1), testAddress, 1)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("amount above 128 bits", func(t *testing.T) {
		tooBig := new(big.Int).Add(maxAmount, big.NewInt(1))
		_, err := EncodeHex("cb62320d", "hi", tooBig, testAddress, 1)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("nil request", func(t *testing.T) {
		_, err := Encode(nil)
		assert.Error(t, err)
	})
}

func Test_ParseSelector(t *testing.T) {
	sel, err := ParseSelector("0xCB62320D")
	require.NoError(t, err)
	assert.Equal(t, Selector{0xcb, 0x62, 0x32, 0x0d}, sel)
	assert.Equal(t, "cb62320d", sel.Hex())
}

func Test_Decode(t *testing.T) {
	t.Run("round trips the known vector", func(t *testing.T) {
		decoded, err := DecodeHex(expectedVectorHex, 2)
		require.NoError(t, err)

		assert.Equal(t, "cb62320d", decoded.Selector.Hex())
		assert.Equal(t, []byte("hi"), decoded.Name)
		assert.Equal(t, "70000000000000000", decoded.Amount.String())
		assert.Equal(t, common.HexToAddress(testAddress), decoded.TargetAddress)
		assert.Equal(t, testTimestamp, decoded.Timestamp)
	})

	t.Run("wrong name length", func(t *testing.T) {
		_, err := DecodeHex(expectedVectorHex, 3)
		assert.Error(t, err)
	})

	t.Run("zero name length", func(t *testing.T) {
		_, err := DecodeHex(expectedVectorHex, 0)
		assert.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("timestamp above 64 bits", func(t *testing.T) {
		data, err := hex.DecodeString(expectedVectorHex)
		require.NoError(t, err)
		data[len(data)-TimestampLength] = 0x01
		_, err = Decode(data, 2)
		assert.Error(t, err)
	})

	t.Run("bad hex", func(t *testing.T) {
		_, err := DecodeHex("0xnothex", 2)
		assert.ErrorIs(t, err, ErrInvalidHex)
	})
}
