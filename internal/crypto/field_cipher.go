// Package crypto は金額フィールドの保存時暗号化（AES-256-GCM）を提供する。
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"contract-portal-service/internal/domain"
)

const (
	keySize = 32 // AES-256 = 32バイト
	ivSize  = 16 // 保存形式互換のため16バイトIVを使用
	tagSize = 16 // GCM認証タグ
)

// FieldCipher は個々の金額フィールドをAES-256-GCMで暗号化・復号する。
// 構築後は不変であり、複数goroutineから同時に呼び出してよい。
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher は64文字のhex文字列（32バイト鍵）からFieldCipherを生成する。
// 鍵が未設定・hex不正・長さ不正の場合はErrInvalidKeyを返す。
func NewFieldCipher(hexKey string) (*FieldCipher, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("%w: key is not set", domain.ErrInvalidKey)
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key must be hex encoded", domain.ErrInvalidKey)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: key must be %d hex characters (%d bytes)", domain.ErrInvalidKey, keySize*2, keySize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}

	return &FieldCipher{aead: aead}, nil
}

// Encrypt は平文を暗号化し "iv:authTag:ciphertext"（各セグメントhex）形式で返す。
// 呼び出しごとに新しいIVを生成するため、同じ平文でも毎回異なる暗号文になる。
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}

	// Sealの出力は ciphertext || authTag の連結
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	authTag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(authTag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt は "iv:authTag:ciphertext" 形式の暗号文を復号する。
// セグメント数不正・hex不正・認証タグ不一致の場合はErrDecryptFailedを返す。
// 復号失敗を0やnullとして扱ってはならない。呼び出し側へ必ず伝播させること。
func (c *FieldCipher) Decrypt(stored string) (string, error) {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected iv:authTag:ciphertext format", domain.ErrDecryptFailed)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("%w: invalid IV segment", domain.ErrDecryptFailed)
	}
	authTag, err := hex.DecodeString(parts[1])
	if err != nil || len(authTag) != tagSize {
		return "", fmt.Errorf("%w: invalid auth tag segment", domain.ErrDecryptFailed)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext segment", domain.ErrDecryptFailed)
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, authTag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", domain.ErrDecryptFailed)
	}

	return string(plaintext), nil
}

// GenerateKey は新しい32バイト鍵を生成しhex文字列（64文字）で返す。
// 生成した鍵はCONTRACT_ENCRYPTION_KEYとして設定する。
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generating random key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
