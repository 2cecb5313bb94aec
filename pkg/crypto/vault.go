package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// vault.go - хранилище API ключей аккаунтов
//
// Новые значения пишутся с префиксом версии: ENC[v1]:<base64>.
// Значение с префиксом расшифровывается только через AES-GCM,
// ошибка означает несовпадение ключа и возвращается как есть.
//
// Значения без префикса остались от старых записей. Для них действует
// переходный порядок: AES-GCM, затем base64 от печатного текста,
// затем строка как открытый текст. После перешифрования всех записей
// этот путь можно удалить.

const versionPrefix = "ENC[v1]:"

var (
	// ErrKeyMismatch - значение зашифровано другим ключом
	ErrKeyMismatch = errors.New("encryption key mismatch")
	// ErrEmptyValue - пустое значение в хранилище
	ErrEmptyValue = errors.New("empty credential value")
)

// Format - в каком виде хранилось значение
type Format int

const (
	FormatTagged Format = iota
	FormatLegacyCipher
	FormatLegacyBase64
	FormatPlaintext
)

func (f Format) String() string {
	switch f {
	case FormatTagged:
		return "tagged"
	case FormatLegacyCipher:
		return "legacy_cipher"
	case FormatLegacyBase64:
		return "legacy_base64"
	case FormatPlaintext:
		return "plaintext"
	default:
		return "unknown"
	}
}

// IsLegacy - значение нужно перешифровать
func (f Format) IsLegacy() bool {
	return f != FormatTagged
}

// Vault шифрует и расшифровывает учётные данные одним ключом
type Vault struct {
	gcm *aesGCM
}

// NewVault создаёт хранилище с ключом AES-256
func NewVault(key []byte) (*Vault, error) {
	gcm, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}
	return &Vault{gcm: gcm}, nil
}

// Encrypt возвращает значение с префиксом версии
func (v *Vault) Encrypt(plaintext string) (string, error) {
	sealed, err := v.gcm.seal(plaintext)
	if err != nil {
		return "", err
	}
	return versionPrefix + sealed, nil
}

// Decrypt возвращает открытый текст значения
func (v *Vault) Decrypt(value string) (string, error) {
	plain, _, err := v.Open(value)
	return plain, err
}

// Open расшифровывает значение и сообщает, в каком формате оно хранилось
func (v *Vault) Open(value string) (string, Format, error) {
	if value == "" {
		return "", FormatPlaintext, ErrEmptyValue
	}

	if strings.HasPrefix(value, versionPrefix) {
		plain, err := v.gcm.open(strings.TrimPrefix(value, versionPrefix))
		if err != nil {
			if errors.Is(err, ErrDecryptionFailed) {
				return "", FormatTagged, ErrKeyMismatch
			}
			return "", FormatTagged, err
		}
		return plain, FormatTagged, nil
	}

	if plain, err := v.gcm.open(value); err == nil {
		return plain, FormatLegacyCipher, nil
	}

	if plain, ok := decodePrintableBase64(value); ok {
		return plain, FormatLegacyBase64, nil
	}

	return value, FormatPlaintext, nil
}

// IsEncrypted - значение записано текущим форматом
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, versionPrefix)
}

// decodePrintableBase64 принимает base64 только если результат - печатный UTF-8.
// Случайные байты (например, API ключ, случайно валидный как base64) отбрасываются.
func decodePrintableBase64(value string) (string, bool) {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding} {
		raw, err := enc.DecodeString(value)
		if err != nil || len(raw) == 0 || !utf8.Valid(raw) {
			continue
		}
		printable := true
		for _, r := range string(raw) {
			if !unicode.IsPrint(r) {
				printable = false
				break
			}
		}
		if printable {
			return string(raw), true
		}
	}
	return "", false
}
