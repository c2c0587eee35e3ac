package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Codec выпускает и проверяет verification tokens.
//
// Формат: base64url(payload) + "." + base64url(HMAC-SHA256(payload)).
// Payload — JSON {sub, exp, nonce}; exp в миллисекундах Unix.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Config — конфигурация Codec.
type Config struct {
	// Secret — общий для всех процессов ключ подписи.
	Secret []byte

	// Now — источник времени (default: time.Now). Подменяется в тестах.
	Now func() time.Time
}

// New создаёт Codec.
func New(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("token codec: empty secret")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{secret: cfg.Secret, now: now}, nil
}

// payload — подписанное содержимое токена.
type payload struct {
	// Sub — subject id (id клиента).
	Sub string `json:"sub"`

	// Exp — срок действия, миллисекунды Unix.
	Exp int64 `json:"exp"`

	// Nonce — 128 случайных бит. Нужен только чтобы два токена для
	// одного subject с одинаковым exp были побитово различны.
	Nonce string `json:"nonce"`
}

// Issue выпускает токен для subjectID со сроком действия validity.
func (c *Codec) Issue(subjectID string, validity time.Duration) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	raw, err := json.Marshal(payload{
		Sub:   subjectID,
		Exp:   c.now().Add(validity).UnixMilli(),
		Nonce: hex.EncodeToString(nonce),
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	mac := c.sign(raw)

	return base64.RawURLEncoding.EncodeToString(raw) +
		"." +
		base64.RawURLEncoding.EncodeToString(mac), nil
}

// Verify проверяет токен и возвращает subject id.
//
// Порядок проверок фиксирован: формат → подпись → срок действия.
// Payload разбирается только после успешной проверки подписи.
func (c *Codec) Verify(tok string) (string, error) {
	left, right, ok := strings.Cut(tok, ".")
	if !ok || left == "" || right == "" {
		return "", ErrMalformedToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(left)
	if err != nil {
		return "", ErrMalformedToken
	}
	mac, err := base64.RawURLEncoding.DecodeString(right)
	if err != nil {
		return "", ErrMalformedToken
	}

	// hmac.Equal — сравнение за константное время.
	if !hmac.Equal(mac, c.sign(raw)) {
		return "", ErrInvalidSignature
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", ErrMalformedToken
	}

	if c.now().UnixMilli() > p.Exp {
		return "", ErrTokenExpired
	}

	return p.Sub, nil
}

// sign вычисляет HMAC-SHA256 над payload.
func (c *Codec) sign(raw []byte) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write(raw)
	return h.Sum(nil)
}
