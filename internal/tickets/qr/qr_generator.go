package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"ms-booking/internal/models"

	"github.com/skip2/go-qrcode"
)

// QRGenerator renders e-tickets as QR codes carrying an AES-GCM sealed payload,
// so a scanner holding the same secret can read and authenticate them.
type QRGenerator struct {
	secret []byte
	size   int
}

func NewQRGenerator(secret string) (*QRGenerator, error) {
	if secret == "" {
		return nil, errors.New("QR secret is empty")
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:], size: 256}, nil
}

// Encode implements booking.TicketEncoder and returns a PNG.
func (q *QRGenerator) Encode(ticket models.TicketPayload) ([]byte, error) {
	data, err := json.Marshal(ticket)
	if err != nil {
		return nil, err
	}
	sealed, err := q.seal(data)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(sealed, qrcode.Medium, q.size)
}

// Decode opens the text scanned from a ticket QR code.
func (q *QRGenerator) Decode(scanned string) (*models.TicketPayload, error) {
	raw, err := base64.URLEncoding.DecodeString(scanned)
	if err != nil {
		return nil, err
	}
	gcm, err := q.gcm()
	if err != nil {
		return nil, err
	}
	if len(raw) < gcm.NonceSize() {
		return nil, errors.New("ticket payload too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	var ticket models.TicketPayload
	if err := json.Unmarshal(plain, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (q *QRGenerator) seal(data []byte) (string, error) {
	gcm, err := q.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(gcm.Seal(nonce, nonce, data, nil)), nil
}

func (q *QRGenerator) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
