package config

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math"
	"regexp"
)

// Decrypter wraps secret-field decryption around an RSA private key,
// grounded on pkg/serve/encrypt.go's Decryptor/Decrypt pair.
type Decrypter struct {
	*rsa.PrivateKey
}

func parseRSAKey(key []byte) (any, error) {
	block, _ := pem.Decode(key)
	if block == nil {
		return nil, errors.New("config: malformed key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	return nil, fmt.Errorf("config: key type not supported: %s", block.Type)
}

// NewDecrypter parses decryptedKey (a PEM-encoded RSA private key) for
// use decrypting ENC(...) config fields.
func NewDecrypter(decryptedKey string) (*Decrypter, error) {
	key, err := parseRSAKey([]byte(decryptedKey))
	if err != nil {
		return nil, err
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("config: not an rsa private key")
	}
	return &Decrypter{PrivateKey: priv}, nil
}

func (d *Decrypter) decryptBytes(data []byte) ([]byte, error) {
	chunkLen := d.N.BitLen() / 8
	var b bytes.Buffer
	chunkNum := int(math.Ceil(float64(len(data)) / float64(chunkLen)))
	for i := 0; i < chunkNum; i++ {
		end := chunkLen * (i + 1)
		if i == chunkNum-1 {
			end = len(data)
		}
		part, err := rsa.DecryptPKCS1v15(rand.Reader, d.PrivateKey, data[chunkLen*i:end])
		if err != nil {
			return nil, err
		}
		b.Write(part)
	}
	return b.Bytes(), nil
}

var encBlock = regexp.MustCompile(`^ENC\((?:[A-Za-z0-9+/]{4})*(?:[A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=|[A-Za-z0-9+/]{4})\)$`)

// Decrypt returns content unchanged unless it is wrapped in ENC(...),
// in which case the inner base64 payload is RSA-decrypted.
func (d *Decrypter) Decrypt(content string) (string, error) {
	if !encBlock.MatchString(content) {
		return content, nil
	}
	raw, err := base64.StdEncoding.DecodeString(content[4 : len(content)-1])
	if err != nil {
		return "", err
	}
	plain, err := d.decryptBytes(raw)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
