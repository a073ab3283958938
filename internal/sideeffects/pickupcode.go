package sideeffects

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// PickupCodeGenerator produces the QR code a customer presents at the box
// when an order is ready. The payload is AES-encrypted so the code is
// opaque outside the box terminals.
type PickupCodeGenerator struct {
	secret []byte
}

func NewPickupCodeGenerator(secret string) *PickupCodeGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &PickupCodeGenerator{secret: hashed[:]}
}

type pickupPayload struct {
	OrderID    string    `json:"order_id"`
	BoxID      string    `json:"box_id"`
	CustomerID string    `json:"customer_id"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Generate returns an encrypted QR code PNG for the order pickup.
func (g *PickupCodeGenerator) Generate(orderID, boxID, customerID string) ([]byte, error) {
	data, err := json.Marshal(pickupPayload{
		OrderID:    orderID,
		BoxID:      boxID,
		CustomerID: customerID,
		IssuedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
