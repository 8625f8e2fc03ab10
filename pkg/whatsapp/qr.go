package whatsapp

import (
	"encoding/base64"

	qrCode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// QRDataURL renders a pairing code as a PNG data URL.
func QRDataURL(code string) (string, error) {
	qrPNG, err := qrCode.Encode(code, qrCode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG), nil
}
