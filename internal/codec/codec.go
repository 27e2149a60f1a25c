// Package codec classifies content as text or binary, computes content
// checksums, and packages content with its encoding tag so that whatever
// is restored from a backup is byte-identical to what was captured.
package codec

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"nd-go/internal/model"
)

// Checksum returns the SHA-256 digest of data as a lowercase hex string.
// Checksums are always computed over decoded bytes, never over a base64
// string representation.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Encode packages content into an EncodedContent whose checksum and size
// are derived from the decoded byte sequence.
//
// If asserted is non-empty it came from an authoritative source (the
// remote API labeled the payload) and is trusted as-is; re-detecting
// would risk misclassifying base64-looking text. When asserted is empty
// the encoding is detected: valid UTF-8 is kept as text, anything else
// is wrapped as a base64 payload.
func Encode(content string, asserted model.Encoding) (model.EncodedContent, error) {
	switch asserted {
	case model.EncodingUTF8:
		return fromText(content), nil
	case model.EncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return model.EncodedContent{}, fmt.Errorf("asserted base64 content does not decode: %w", err)
		}
		return model.EncodedContent{
			Content:  content,
			Encoding: model.EncodingBase64,
			Size:     int64(len(decoded)),
			Checksum: Checksum(decoded),
		}, nil
	case "":
		if utf8.ValidString(content) {
			return fromText(content), nil
		}
		return EncodeBytes([]byte(content)), nil
	default:
		return model.EncodedContent{}, fmt.Errorf("unknown encoding: %q", asserted)
	}
}

// EncodeBytes packages a raw byte payload. Valid UTF-8 stays text;
// binary data becomes a base64 payload. Zero-length content is valid.
func EncodeBytes(data []byte) model.EncodedContent {
	if utf8.Valid(data) {
		return fromText(string(data))
	}
	return model.EncodedContent{
		Content:  base64.StdEncoding.EncodeToString(data),
		Encoding: model.EncodingBase64,
		Size:     int64(len(data)),
		Checksum: Checksum(data),
	}
}

func fromText(content string) model.EncodedContent {
	return model.EncodedContent{
		Content:  content,
		Encoding: model.EncodingUTF8,
		Size:     int64(len(content)),
		Checksum: Checksum([]byte(content)),
	}
}

// Decode returns the decoded byte sequence of an EncodedContent.
func Decode(ec model.EncodedContent) ([]byte, error) {
	return DecodeRaw(ec.Content, ec.Encoding)
}

// DecodeRaw decodes content per its encoding tag.
func DecodeRaw(content string, encoding model.Encoding) ([]byte, error) {
	switch encoding {
	case model.EncodingUTF8:
		return []byte(content), nil
	case model.EncodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 content: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unknown encoding: %q", encoding)
	}
}

// Verify decodes content per encoding, recomputes its checksum and
// compares it to expected. Pure and deterministic; this is the single
// gate rollback correctness depends on.
func Verify(content string, encoding model.Encoding, expected string) bool {
	decoded, err := DecodeRaw(content, encoding)
	if err != nil {
		return false
	}
	return Checksum(decoded) == expected
}
