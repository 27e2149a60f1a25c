package codec_test

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"nd-go/internal/codec"
	"nd-go/internal/model"
)

func sha256hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func TestEncode_detection(t *testing.T) {
	t.Run("valid UTF-8 stays text", func(t *testing.T) {
		ec, err := codec.Encode("hello world", "")
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if ec.Encoding != model.EncodingUTF8 {
			t.Errorf("Encoding = %q, want %q", ec.Encoding, model.EncodingUTF8)
		}
		if ec.Content != "hello world" {
			t.Errorf("Content = %q, want %q", ec.Content, "hello world")
		}
		if ec.Size != 11 {
			t.Errorf("Size = %d, want 11", ec.Size)
		}
		if ec.Checksum != sha256hex([]byte("hello world")) {
			t.Errorf("Checksum = %q, want checksum of decoded bytes", ec.Checksum)
		}
	})

	t.Run("invalid UTF-8 becomes base64", func(t *testing.T) {
		raw := []byte{0xff, 0xfe, 0x00, 0x01}
		ec, err := codec.Encode(string(raw), "")
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if ec.Encoding != model.EncodingBase64 {
			t.Errorf("Encoding = %q, want %q", ec.Encoding, model.EncodingBase64)
		}
		if ec.Content != base64.StdEncoding.EncodeToString(raw) {
			t.Errorf("Content = %q, not the base64 of the raw bytes", ec.Content)
		}
		if ec.Size != int64(len(raw)) {
			t.Errorf("Size = %d, want %d", ec.Size, len(raw))
		}
		if ec.Checksum != sha256hex(raw) {
			t.Errorf("Checksum computed over encoded form, want decoded bytes")
		}
	})

	t.Run("zero-length content is valid", func(t *testing.T) {
		ec, err := codec.Encode("", "")
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if ec.Size != 0 {
			t.Errorf("Size = %d, want 0", ec.Size)
		}
		if ec.Checksum != sha256hex(nil) {
			t.Errorf("Checksum = %q, want checksum of empty input", ec.Checksum)
		}
	})

	t.Run("base64-looking text is kept as text when detected", func(t *testing.T) {
		// "aGVsbG8=" is valid UTF-8; without an asserted encoding it must
		// not be decoded as base64.
		ec, err := codec.Encode("aGVsbG8=", "")
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if ec.Encoding != model.EncodingUTF8 {
			t.Errorf("Encoding = %q, want %q", ec.Encoding, model.EncodingUTF8)
		}
	})
}

func TestEncode_asserted(t *testing.T) {
	t.Run("asserted base64 is trusted", func(t *testing.T) {
		raw := []byte("binary payload")
		encoded := base64.StdEncoding.EncodeToString(raw)

		ec, err := codec.Encode(encoded, model.EncodingBase64)
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if ec.Encoding != model.EncodingBase64 {
			t.Errorf("Encoding = %q, want %q", ec.Encoding, model.EncodingBase64)
		}
		if ec.Size != int64(len(raw)) {
			t.Errorf("Size = %d, want decoded length %d", ec.Size, len(raw))
		}
		if ec.Checksum != sha256hex(raw) {
			t.Errorf("Checksum = %q, want checksum of decoded bytes", ec.Checksum)
		}
	})

	t.Run("asserted base64 that does not decode is an error", func(t *testing.T) {
		if _, err := codec.Encode("not base64!!!", model.EncodingBase64); err == nil {
			t.Error("Encode() error = nil, want decode error")
		}
	})

	t.Run("unknown asserted encoding is an error", func(t *testing.T) {
		if _, err := codec.Encode("x", model.Encoding("utf-16")); err == nil {
			t.Error("Encode() error = nil, want unknown encoding error")
		}
	})
}

func TestEncodeBytes_roundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want model.Encoding
	}{
		{name: "text", data: []byte("plain text"), want: model.EncodingUTF8},
		{name: "binary", data: []byte{0x00, 0xff, 0x12, 0x80}, want: model.EncodingBase64},
		{name: "empty", data: nil, want: model.EncodingUTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := codec.EncodeBytes(tt.data)
			if ec.Encoding != tt.want {
				t.Fatalf("Encoding = %q, want %q", ec.Encoding, tt.want)
			}

			decoded, err := codec.Decode(ec)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if string(decoded) != string(tt.data) {
				t.Errorf("round trip produced %v, want %v", decoded, tt.data)
			}
		})
	}
}

func TestDecodeRaw(t *testing.T) {
	t.Run("rejects malformed base64", func(t *testing.T) {
		if _, err := codec.DecodeRaw("%%%", model.EncodingBase64); err == nil {
			t.Error("DecodeRaw() error = nil, want error")
		}
	})

	t.Run("rejects unknown encoding", func(t *testing.T) {
		if _, err := codec.DecodeRaw("x", model.Encoding("hex")); err == nil {
			t.Error("DecodeRaw() error = nil, want error")
		}
	})
}

func TestVerify(t *testing.T) {
	t.Run("accepts matching checksum", func(t *testing.T) {
		ec := codec.EncodeBytes([]byte("content"))
		if !codec.Verify(ec.Content, ec.Encoding, ec.Checksum) {
			t.Error("Verify() = false for untampered content")
		}
	})

	t.Run("rejects tampered content", func(t *testing.T) {
		ec := codec.EncodeBytes([]byte("content"))
		if codec.Verify(ec.Content+"x", ec.Encoding, ec.Checksum) {
			t.Error("Verify() = true for tampered content")
		}
	})

	t.Run("rejects undecodable content", func(t *testing.T) {
		if codec.Verify("%%%", model.EncodingBase64, sha256hex([]byte("x"))) {
			t.Error("Verify() = true for undecodable content")
		}
	})
}

func TestChecksum_distinct(t *testing.T) {
	a := codec.Checksum([]byte("a"))
	b := codec.Checksum([]byte("b"))
	if a == b {
		t.Error("distinct content produced identical checksums")
	}
	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(a))
	}
}
