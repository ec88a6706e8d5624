// Package cifrado cifra en reposo las credenciales MH de los emisores
// (passphrase del firmador y clave API) con AES-256-GCM; la llave se deriva
// del secreto de la app con PBKDF2.
package cifrado

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen     = 16
	iteraciones = 100_000
	keyLen      = 32 // AES-256
)

// ErrTextoCifradoInvalido el valor almacenado no tiene el formato esperado.
var ErrTextoCifradoInvalido = errors.New("texto cifrado inválido")

// Cifrador cifra y descifra strings cortos (credenciales).
type Cifrador struct {
	secreto []byte
}

// NewCifrador construye el cifrador a partir del secreto de configuración.
func NewCifrador(secreto string) (*Cifrador, error) {
	if secreto == "" {
		return nil, errors.New("cifrado: secreto vacío")
	}
	return &Cifrador{secreto: []byte(secreto)}, nil
}

// Cifrar devuelve base64(salt || nonce || ciphertext). El salt es único por
// valor, así que cifrar dos veces lo mismo produce salidas distintas.
func (c *Cifrador) Cifrar(textoPlano string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("cifrado: generar salt: %w", err)
	}

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cifrado: generar nonce: %w", err)
	}

	sellado := gcm.Seal(nil, nonce, []byte(textoPlano), nil)
	blob := append(append(salt, nonce...), sellado...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Descifrar revierte Cifrar. Un secreto incorrecto o un blob manipulado
// fallan la verificación GCM.
func (c *Cifrador) Descifrar(textoCifrado string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(textoCifrado)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTextoCifradoInvalido, err)
	}
	if len(blob) < saltLen {
		return "", ErrTextoCifradoInvalido
	}

	salt := blob[:saltLen]
	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}
	if len(blob) < saltLen+gcm.NonceSize() {
		return "", ErrTextoCifradoInvalido
	}

	nonce := blob[saltLen : saltLen+gcm.NonceSize()]
	sellado := blob[saltLen+gcm.NonceSize():]
	plano, err := gcm.Open(nil, nonce, sellado, nil)
	if err != nil {
		return "", fmt.Errorf("cifrado: descifrar: %w", err)
	}
	return string(plano), nil
}

func (c *Cifrador) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secreto, salt, iteraciones, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cifrado: crear cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cifrado: crear GCM: %w", err)
	}
	return gcm, nil
}
