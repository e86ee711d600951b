// Package abi implements the minimal contract-call codec used by the bridge:
// the address/uint256/string scalar encodings and a fixed function-selector
// table. It is deliberately not a general ABI library.
package abi

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pinksters/polkagodot-plugin/types"
)

// wordLen is the length in hex characters of one 32-byte ABI word.
const wordLen = 64

// Selectors maps supported function names to their 4-byte call selectors.
var Selectors = map[string]string{
	"ownerOf":        "0x6352211e",
	"tokenURI":       "0xc87b56dd",
	"totalSupply":    "0x18160ddd",
	"name":           "0x06fdde03",
	"symbol":         "0x95d89b41",
	"equipHat":       "0x20210749",
	"unequipHat":     "0x9871bf3c",
	"getEquippedHat": "0x018e8b41",
}

// EncodeAddress encodes an address as a zero-padded 32-byte word. The result
// is always exactly 64 hex characters; oversized input is the caller's
// responsibility.
func EncodeAddress(addr string) string {
	h := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	return padWord(h)
}

// EncodeUint256 encodes a non-negative integer as a zero-padded 32-byte word.
// It accepts *big.Int, native Go integers, and decimal or 0x-hex strings.
func EncodeUint256(value interface{}) (string, error) {
	n, err := toBig(value)
	if err != nil {
		return "", err
	}
	return padWord(n.Text(16)), nil
}

// DecodeAddress decodes an address word. It returns "" for empty input or the
// bare no-data marker, otherwise the last 20 bytes of the payload, lower-cased
// and 0x-prefixed.
func DecodeAddress(data string) string {
	h := strings.TrimPrefix(data, "0x")
	if h == "" {
		return ""
	}
	if len(h) > 40 {
		h = h[len(h)-40:]
	}
	return "0x" + strings.ToLower(h)
}

// DecodeUint256 decodes a uint256 word. Empty input and the bare no-data
// marker decode to zero, as does unparseable hex.
func DecodeUint256(data string) *big.Int {
	h := strings.TrimPrefix(data, "0x")
	if h == "" {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return new(big.Int)
	}
	return n
}

// DecodeString decodes a standard dynamic-string encoding: an offset word, a
// length word at that offset, then the UTF-8 payload. Data absent or shorter
// than the two header words decodes to "".
func DecodeString(data string) string {
	h := strings.TrimPrefix(data, "0x")
	if len(h) < 2*wordLen {
		return ""
	}

	offset, ok := new(big.Int).SetString(h[:wordLen], 16)
	if !ok {
		return ""
	}
	lenStart := int(offset.Int64()) * 2
	if lenStart < 0 || len(h) < lenStart+wordLen {
		return ""
	}

	strLen, ok := new(big.Int).SetString(h[lenStart:lenStart+wordLen], 16)
	if !ok {
		return ""
	}
	payloadStart := lenStart + wordLen
	payloadEnd := payloadStart + int(strLen.Int64())*2
	if payloadEnd < payloadStart || payloadEnd > len(h) {
		payloadEnd = len(h)
	}

	raw, err := hex.DecodeString(h[payloadStart:payloadEnd])
	if err != nil {
		return ""
	}
	return string(raw)
}

// BuildCallData concatenates the selector for functionName with the given
// pre-encoded 32-byte argument words.
func BuildCallData(functionName string, encodedArgs ...string) (string, error) {
	selector, ok := Selectors[functionName]
	if !ok {
		return "", types.Errorf(types.ErrUnknownFunction, "Unknown function: %s", functionName)
	}

	var b strings.Builder
	b.WriteString(selector)
	for _, arg := range encodedArgs {
		b.WriteString(arg)
	}
	return b.String(), nil
}

func padWord(h string) string {
	if len(h) >= wordLen {
		return h
	}
	return strings.Repeat("0", wordLen-len(h)) + h
}

func toBig(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil || v.Sign() < 0 {
			return nil, types.Errorf(types.ErrEncoding, "uint256 value must be non-negative")
		}
		return v, nil
	case int:
		return fromInt64(int64(v))
	case int64:
		return fromInt64(v)
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case string:
		s := strings.TrimSpace(v)
		base := 10
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s = s[2:]
			base = 16
		}
		n, ok := new(big.Int).SetString(s, base)
		if !ok || n.Sign() < 0 {
			return nil, types.Errorf(types.ErrEncoding, "invalid uint256 value %q", v)
		}
		return n, nil
	default:
		return nil, types.Errorf(types.ErrEncoding, "unsupported uint256 value type %T", value)
	}
}

func fromInt64(v int64) (*big.Int, error) {
	if v < 0 {
		return nil, types.Errorf(types.ErrEncoding, "uint256 value must be non-negative, got %d", v)
	}
	return big.NewInt(v), nil
}
