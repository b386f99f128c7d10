// Package codec implements strict binary decoding for Tempo transactions
// and structured nonce keys.
package codec

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	nonceKeyLen = 32

	groupNonceVersion  = 0x01
	groupNonceFlagMask = 0x003F
)

var groupNonceMagic = [4]byte{'N', 'K', 'G', '1'}

// FieldEncoding is the per-field encoding selector carried in a grouped
// nonce key's flags.
type FieldEncoding uint8

const (
	EncodingNumeric FieldEncoding = 0
	EncodingAscii   FieldEncoding = 1
)

func (e FieldEncoding) String() string {
	if e == EncodingAscii {
		return "ascii"
	}
	return "numeric"
}

// DecodedField is one of scope/group/memo, decoded per its flag bits.
type DecodedField struct {
	Encoding FieldEncoding
	Value    string
}

// GroupedNonceKey is the parsed form of a 32-byte grouped nonce key.
type GroupedNonceKey struct {
	Kind      uint8
	Flags     uint16
	Scope     DecodedField
	Group     DecodedField
	Memo      DecodedField
	GroupID16 []byte // first 16 bytes of keccak256(nonce_key)
}

// IsGroupedNonceKey reports whether bytes conform to the NKG1 structure:
// correct length, magic, version, and only the defined flag bits set,
// with ascii-tagged fields containing only valid ascii.
func IsGroupedNonceKey(b []byte) bool {
	if len(b) != nonceKeyLen {
		return false
	}
	if b[0] != groupNonceMagic[0] || b[1] != groupNonceMagic[1] || b[2] != groupNonceMagic[2] || b[3] != groupNonceMagic[3] {
		return false
	}
	if b[4] != groupNonceVersion {
		return false
	}

	flags := binary.BigEndian.Uint16(b[6:8])
	if flags&^uint16(groupNonceFlagMask) != 0 {
		return false
	}

	scopeEnc := flags & 0b11
	groupEnc := (flags >> 2) & 0b11
	memoEnc := (flags >> 4) & 0b11
	if scopeEnc > 1 || groupEnc > 1 || memoEnc > 1 {
		return false
	}

	if scopeEnc == 1 && !isAsciiField(b[8:16]) {
		return false
	}
	if groupEnc == 1 && !isAsciiField(b[16:20]) {
		return false
	}
	if memoEnc == 1 && !isAsciiField(b[20:32]) {
		return false
	}

	return true
}

// ParseNonceKey decodes a 32-byte nonce key. ok is false (and grouped
// nil) for an ungrouped key (any bytes not conforming to NKG1); for a
// grouped key GroupID16 is keccak256(nonce_key)[0:16].
func ParseNonceKey(nonceKey []byte) (grouped *GroupedNonceKey, ok bool) {
	if !IsGroupedNonceKey(nonceKey) {
		return nil, false
	}

	flags := binary.BigEndian.Uint16(nonceKey[6:8])
	scopeEnc := FieldEncoding(flags & 0b11)
	groupEnc := FieldEncoding((flags >> 2) & 0b11)
	memoEnc := FieldEncoding((flags >> 4) & 0b11)

	grouped = &GroupedNonceKey{
		Kind:      nonceKey[5],
		Flags:     flags,
		Scope:     decodeField(nonceKey[8:16], scopeEnc, fieldScope),
		Group:     decodeField(nonceKey[16:20], groupEnc, fieldGroup),
		Memo:      decodeField(nonceKey[20:32], memoEnc, fieldMemo),
		GroupID16: GroupID16(nonceKey),
	}
	return grouped, true
}

// GroupID16 is the first 16 bytes of keccak256(nonce_key), the canonical
// group identifier persisted on the row, computed regardless of whether
// the key is grouped or not (callers only persist it when grouped).
func GroupID16(nonceKey []byte) []byte {
	hash := crypto.Keccak256(nonceKey)
	return hash[:16]
}

// IsRandomNonceKey reports whether the key is the chain's "random"
// sentinel: the ASCII bytes "random" right-aligned in an otherwise
// zero key. Such keys carry no nonce stream, so staleness can never be
// observed for them.
func IsRandomNonceKey(nonceKey []byte) bool {
	offset := 0
	for offset < len(nonceKey) && nonceKey[offset] == 0 {
		offset++
	}
	return string(nonceKey[offset:]) == "random"
}

type fieldKind int

const (
	fieldScope fieldKind = iota
	fieldGroup
	fieldMemo
)

func decodeField(b []byte, enc FieldEncoding, kind fieldKind) DecodedField {
	var value string
	switch enc {
	case EncodingNumeric:
		value = decodeNumeric(b, kind)
	default:
		value = decodeAscii(b)
	}
	return DecodedField{Encoding: enc, Value: value}
}

func decodeNumeric(b []byte, kind fieldKind) string {
	switch kind {
	case fieldScope:
		return strconv.FormatUint(binary.BigEndian.Uint64(b), 10)
	case fieldGroup:
		return strconv.FormatUint(uint64(binary.BigEndian.Uint32(b)), 10)
	default:
		return fmt.Sprintf("0x%x", b)
	}
}

func decodeAscii(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	for _, c := range b[:end] {
		if c < 0x20 || c > 0x7E {
			return fmt.Sprintf("0x%x", b)
		}
	}
	return string(b[:end])
}

func isAsciiField(b []byte) bool {
	zeroSeen := false
	for _, c := range b {
		if c == 0 {
			zeroSeen = true
			continue
		}
		if zeroSeen {
			return false
		}
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}

// EncodeNonceKey builds the 32-byte NKG1 wire form from kind, flags and
// the raw scope/group/memo field bytes, the inverse of ParseNonceKey's
// wire layout (GroupID16 is derived from the result, not an input).
func EncodeNonceKey(kind uint8, flags uint16, scope, group, memo []byte) ([]byte, error) {
	if len(scope) != 8 || len(group) != 4 || len(memo) != 12 {
		return nil, fmt.Errorf("codec: invalid field widths for nonce key encoding")
	}

	out := make([]byte, nonceKeyLen)
	copy(out[0:4], groupNonceMagic[:])
	out[4] = groupNonceVersion
	out[5] = kind
	binary.BigEndian.PutUint16(out[6:8], flags)
	copy(out[8:16], scope)
	copy(out[16:20], group)
	copy(out[20:32], memo)

	if !IsGroupedNonceKey(out) {
		return nil, fmt.Errorf("codec: encoded nonce key is not a valid grouped key")
	}
	return out, nil
}
