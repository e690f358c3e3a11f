package orders

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"vmp/src/models"
	"vmp/src/types"
	"vmp/src/utils"

	"github.com/gosimple/slug"
	"github.com/yeqown/go-qrcode"
)

// Sealer encrypts instance codes into QR payloads so a scanned image cannot
// be forged from a guessed code.
type Sealer struct {
	key []byte
}

// NewSealer takes the hex encoded AES key from API_QRC_SECRET.
func NewSealer(secret string) (*Sealer, error) {
	key, err := utils.DecodeKey(secret)
	if err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

func (s *Sealer) Seal(code string) (string, error) {
	return utils.EncryptMessage(s.key, code)
}

func (s *Sealer) Open(payload string) (string, error) {
	code, err := utils.DecryptMessage(s.key, strings.TrimSpace(payload))
	if err != nil {
		log.Printf("[Orders] Rejected QR payload: %s\n", err.Error())
		return "", types.ErrInvalidQRCode
	}
	return *code, nil
}

// Storage keeps uploaded objects and hands back a URL to fetch them.
type Storage interface {
	Upload(ctx context.Context, body []byte, key string, contentType string) (string, error)
}

type QRArtifacts struct {
	sealer  *Sealer
	storage Storage
	tempDir string
}

func NewQRArtifacts(sealer *Sealer, storage Storage, tempDir string) *QRArtifacts {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &QRArtifacts{sealer: sealer, storage: storage, tempDir: tempDir}
}

func (a *QRArtifacts) Generate(ctx context.Context, order *models.PurchasedVoucher, title string) (string, string, error) {
	payload, err := a.sealer.Seal(order.InstanceCode)
	if err != nil {
		return "", "", err
	}
	qrc, err := qrcode.New(payload)
	if err != nil {
		return "", "", err
	}
	path := filepath.Join(a.tempDir, fmt.Sprintf("%s.jpeg", order.ID))
	if err := qrc.Save(path); err != nil {
		log.Printf("[Orders] Could not save qrcode to file [%s]: %s\n", path, err.Error())
		return "", "", err
	}
	defer os.Remove(path)

	body, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	key := ObjectKey(order, title)
	url, err := a.storage.Upload(ctx, body, key, "image/jpeg")
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// ObjectKey names the stored QR image, e.g. "vouchers/dinner-for-two/<order id>.jpeg".
func ObjectKey(order *models.PurchasedVoucher, title string) string {
	name := slug.Make(title)
	if name == "" {
		name = order.VoucherID.String()
	}
	return fmt.Sprintf("vouchers/%s/%s.jpeg", name, order.ID)
}
