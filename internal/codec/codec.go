// Package codec encodes and decodes the stored-message format: one
// RFC2822 envelope per file version, carrying JSON metadata in an
// X-Mailfile header and a payload in a single application/x-mailfile
// part, each optionally authenticated-encrypted.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/bre/mailfile/internal/vaultcrypto"
	"github.com/bre/mailfile/internal/vaulterr"
)

// metadataPadModulus and payloadPadModulus are the exact constants the
// reference implementation pads to before encryption. They have no
// significance beyond keeping small objects from leaking their length
// too precisely and are only applied in encrypted mode.
const (
	metadataPadModulus = 148
	payloadPadModulus  = 2048
	lineLen            = 78
)

// Headers are the fixed ornamental fields every stored object carries
// alongside its metadata and payload.
type Headers struct {
	To      string
	From    string
	Subject string
}

// DefaultHeaders mirror the reference implementation's defaults.
func DefaultHeaders() Headers {
	return Headers{
		To:      "Mailfile Storage <to@mailfile.invalid>",
		From:    "Mailfile Storage <from@mailfile.invalid>",
		Subject: "[Mailfile] File Storage",
	}
}

// Object is one decoded or to-be-encoded file version.
type Object struct {
	Path     string
	Payload  []byte
	Metadata map[string]any
}

// Options configures encode/decode. Encrypted is whether this object
// should be (or was) produced in encrypted mode; Fernet must be non-nil
// whenever Encrypted is true.
type Options struct {
	Encrypted bool
	Fernet    *vaultcrypto.Fernet
	Headers   Headers
}

// Encode renders obj as a stored RFC2822 message.
func Encode(obj Object, opts Options) ([]byte, error) {
	if opts.Encrypted && opts.Fernet == nil {
		return nil, vaulterr.New("codec.Encode", vaulterr.KindCryptoError)
	}

	mdata := cloneMetadata(obj.Metadata)
	mdata["fn"] = obj.Path
	mdata["bytes"] = len(obj.Payload)

	var (
		metaToken, payloadToken string
		encoding, subject, file string
		err                     error
	)

	if opts.Encrypted {
		metaToken, err = encryptedMetadataToken(mdata, opts.Fernet)
		if err != nil {
			return nil, fmt.Errorf("codec: encode metadata: %w", err)
		}
		payloadToken, err = encryptedPayloadToken(obj.Payload, opts.Fernet)
		if err != nil {
			return nil, fmt.Errorf("codec: encode payload: %w", err)
		}
		encoding = "7bit"
		subject = opts.Headers.Subject
		file = "mailfile.enc"
	} else {
		finalJSON, err := json.Marshal(mdata)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal metadata: %w", err)
		}
		metaToken = base64.StdEncoding.EncodeToString(finalJSON)
		payloadToken = base64.StdEncoding.EncodeToString(obj.Payload)
		encoding = "base64"
		subject = opts.Headers.Subject + ": " + obj.Path
		file = path.Base(obj.Path)
	}

	var b strings.Builder
	b.WriteString("To: " + opts.Headers.To + "\r\n")
	b.WriteString("From: " + opts.Headers.From + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("X-Keep-On-Server: manual-delete, not-email\r\n")
	b.WriteString("X-Mailfile:\r\n")
	b.WriteString(reflow(metaToken, " ", lineLen))
	b.WriteString("\r\n")
	b.WriteString("Content-Type: application/x-mailfile\r\n")
	b.WriteString("Content-Transfer-Encoding: " + encoding + "\r\n")
	b.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n", file))
	b.WriteString("\r\n")
	b.WriteString(reflow(payloadToken, "", lineLen))
	b.WriteString("\r\n")

	return []byte(b.String()), nil
}

// Decode fully decodes a stored message. If wantPath is non-empty, the
// decoded fn field must match it or decode fails with IntegrityError.
// The returned metadata has fn, bytes, and the padding key stripped.
func Decode(raw []byte, opts Options, wantPath string) (Object, error) {
	env, err := splitEnvelope(raw)
	if err != nil {
		return Object{}, vaulterr.Wrap("codec.Decode", vaulterr.KindDecodeError, err)
	}

	metadata, err := decodeToken(env.xMailfile, opts)
	if err != nil {
		return Object{}, vaulterr.Wrap("codec.Decode", tokenErrorKind(err), err)
	}

	fn, _ := metadata["fn"].(string)
	if wantPath != "" && fn != wantPath {
		return Object{}, vaulterr.New("codec.Decode", vaulterr.KindIntegrityError)
	}

	wantBytes, err := metadataInt(metadata, "bytes")
	if err != nil {
		return Object{}, vaulterr.Wrap("codec.Decode", vaulterr.KindDecodeError, err)
	}

	payloadToken := unfold(string(env.body))
	payload, err := decodeTransform(payloadToken, opts)
	if err != nil {
		return Object{}, vaulterr.Wrap("codec.Decode", tokenErrorKind(err), err)
	}
	if wantBytes > len(payload) {
		return Object{}, vaulterr.New("codec.Decode", vaulterr.KindDecodeError)
	}
	payload = payload[:wantBytes]

	delete(metadata, "fn")
	delete(metadata, "bytes")
	delete(metadata, "_")

	return Object{Path: fn, Payload: payload, Metadata: metadata}, nil
}

// DecodeHeader decodes only the X-Mailfile header, as used by the
// reverse-scan peek fetch (first 1024 bytes). Unlike Decode, it keeps
// the bytes field (callers need it for size bookkeeping without a full
// fetch) but still strips the padding key.
func DecodeHeader(raw []byte, opts Options) (path string, metadata map[string]any, err error) {
	env, err := splitEnvelope(raw)
	if err != nil {
		return "", nil, vaulterr.Wrap("codec.DecodeHeader", vaulterr.KindDecodeError, err)
	}
	metadata, err = decodeToken(env.xMailfile, opts)
	if err != nil {
		return "", nil, vaulterr.Wrap("codec.DecodeHeader", tokenErrorKind(err), err)
	}
	fn, _ := metadata["fn"].(string)
	if fn == "" {
		return "", nil, vaulterr.New("codec.DecodeHeader", vaulterr.KindDecodeError)
	}
	delete(metadata, "_")
	return fn, metadata, nil
}

func decodeToken(folded string, opts Options) (map[string]any, error) {
	token := unfold(folded)
	data, err := decodeTransform(token, opts)
	if err != nil {
		return nil, err
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// decodeTransform reverses encryptedMetadataToken/encryptedPayloadToken
// or plain base64, based on the leading '!' marker.
func decodeTransform(token string, opts Options) ([]byte, error) {
	if strings.HasPrefix(token, "!") {
		if opts.Fernet == nil {
			return nil, fmt.Errorf("encrypted field but no key configured")
		}
		return opts.Fernet.Decrypt(token[1:])
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return data, nil
}

// tokenErrorKind classifies a decodeToken/decodeTransform failure: a
// rejected Fernet token is a crypto error, anything else a decode error.
func tokenErrorKind(err error) vaulterr.Kind {
	if errors.Is(err, vaultcrypto.ErrInvalidToken) {
		return vaulterr.KindCryptoError
	}
	return vaulterr.KindDecodeError
}

func encryptedMetadataToken(mdata map[string]any, f *vaultcrypto.Fernet) (string, error) {
	mdata["_"] = ""
	withEmptyPad, err := json.Marshal(mdata)
	if err != nil {
		return "", err
	}
	overheadLen := len(withEmptyPad)

	n := metadataPadModulus - (overheadLen % metadataPadModulus)
	if n == 0 {
		n = metadataPadModulus
	}
	mdata["_"] = strings.Repeat("_", n)

	finalJSON, err := json.Marshal(mdata)
	if err != nil {
		return "", err
	}

	token, err := f.Encrypt(finalJSON)
	if err != nil {
		return "", err
	}
	return "!" + token, nil
}

func encryptedPayloadToken(payload []byte, f *vaultcrypto.Fernet) (string, error) {
	padLen := payloadPadModulus - (len(payload) % payloadPadModulus)
	if padLen == 0 {
		padLen = payloadPadModulus
	}
	padded := make([]byte, 0, len(payload)+padLen)
	padded = append(padded, payload...)
	padded = append(padded, bytes.Repeat([]byte(" "), padLen)...)

	token, err := f.Encrypt(padded)
	if err != nil {
		return "", err
	}
	return "!" + token, nil
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		if k == "fn" || k == "bytes" || k == "_" {
			continue
		}
		out[k] = v
	}
	return out
}

func metadataInt(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("metadata missing %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("metadata field %q has unexpected type %T", key, v)
	}
}
