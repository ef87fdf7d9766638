package push

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	recordSize = 4096
	saltLength = 16
	// tag + padding delimiter
	recordOverhead = 16 + 1
)

var (
	keyInfoPrefix = []byte("WebPush: info\x00")
	cekInfo       = []byte("Content-Encoding: aes128gcm\x00")
	nonceInfo     = []byte("Content-Encoding: nonce\x00")
)

// ErrPayloadTooLarge is returned when the payload does not fit one record.
var ErrPayloadTooLarge = errors.New("push payload exceeds a single record")

// encrypt seals payload for the user agent identified by its p256dh key and
// auth secret, producing a single aes128gcm record with header.
func encrypt(payload []byte, p256dh, authSecret string, random io.Reader) ([]byte, error) {
	if len(payload)+recordOverhead > recordSize {
		return nil, ErrPayloadTooLarge
	}

	uaRaw, err := decodeBase64(p256dh)
	if err != nil {
		return nil, fmt.Errorf("decode p256dh: %w", err)
	}
	uaPublic, err := ecdh.P256().NewPublicKey(uaRaw)
	if err != nil {
		return nil, fmt.Errorf("parse p256dh: %w", err)
	}
	auth, err := decodeBase64(authSecret)
	if err != nil {
		return nil, fmt.Errorf("decode auth secret: %w", err)
	}

	asPrivate, err := ecdh.P256().GenerateKey(random)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, err
	}

	shared, err := asPrivate.ECDH(uaPublic)
	if err != nil {
		return nil, err
	}
	asPublic := asPrivate.PublicKey().Bytes()

	cek, nonce, err := deriveContentKeys(shared, auth, salt, uaRaw, asPublic)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(cek)
	if err != nil {
		return nil, err
	}
	plaintext := append(append([]byte{}, payload...), 0x02)
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	var out bytes.Buffer
	out.Write(salt)
	var rs [4]byte
	binary.BigEndian.PutUint32(rs[:], recordSize)
	out.Write(rs[:])
	out.WriteByte(byte(len(asPublic)))
	out.Write(asPublic)
	out.Write(sealed)
	return out.Bytes(), nil
}

func deriveContentKeys(shared, auth, salt, uaPublic, asPublic []byte) ([]byte, []byte, error) {
	keyInfo := make([]byte, 0, len(keyInfoPrefix)+len(uaPublic)+len(asPublic))
	keyInfo = append(keyInfo, keyInfoPrefix...)
	keyInfo = append(keyInfo, uaPublic...)
	keyInfo = append(keyInfo, asPublic...)

	ikm := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, auth, keyInfo), ikm); err != nil {
		return nil, nil, err
	}
	cek := make([]byte, 16)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, cekInfo), cek); err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, nonceInfo), nonce); err != nil {
		return nil, nil, err
	}
	return cek, nonce, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
