// Package canonical produces deterministic fingerprints of structured data.
// The same logical content always hashes to the same digest regardless of
// map iteration order or how the value was decoded, so a fingerprint
// re-derived from stored data matches what was anchored to the ledger.
package canonical

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// Fingerprint canonicalizes v and returns the keccak-256 digest of its
// canonical encoding as a 0x-prefixed hex string, the form the ledger's
// verifier expects.
//
// Canonicalization: map keys are sorted lexicographically at every nesting
// level, array order is preserved, and map entries whose value is null are
// dropped. Dropping nulls means an optional field set to null and one that
// is absent fingerprint identically, so decoding a stored payload through a
// codec that materializes missing fields never changes the digest.
func Fingerprint(v any) (string, error) {
	enc, err := Encode(v)
	if err != nil {
		return "", err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(enc)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// Encode returns the canonical byte encoding of v without hashing it.
// v may be any combination of maps with string keys, slices, strings,
// numbers, booleans and nil; other values are normalized through their JSON
// form first.
func Encode(v any) ([]byte, error) {
	n, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize reduces v to the small set of shapes writeCanonical handles.
// Structs, typed maps and typed slices take a round trip through
// encoding/json; json.Number keeps numeric literals exact on the way back.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		map[string]any, []any:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: unsupported value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canonical: normalize: %w", err)
	}
	return out, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeString(buf, t)
	case json.Number:
		buf.WriteString(t.String())
	case int:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(t, 10))
	case float32:
		return writeFloat(buf, float64(t))
	case float64:
		return writeFloat(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			n, err := normalize(el)
			if err != nil {
				return err
			}
			if err := writeCanonical(buf, n); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		norm := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k, val := range t {
			n, err := normalize(val)
			if err != nil {
				return err
			}
			if n == nil {
				continue // null entries are dropped, see Fingerprint
			}
			norm[k] = n
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, norm[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}

// writeString emits a JSON string using encoding/json so escaping stays
// byte-identical to what the stability tests round-trip through.
func writeString(buf *bytes.Buffer, s string) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(raw)
	return nil
}

// writeFloat matches encoding/json's number formatting: integral floats
// print without an exponent or trailing zeros.
func writeFloat(buf *bytes.Buffer, f float64) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("canonical: non-finite number")
	}
	buf.Write(raw)
	return nil
}
