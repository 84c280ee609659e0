package utils

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"regexp"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"registration-system/models"
)

// BuildCSV renders the export rows in the dashboard column order.
func BuildCSV(regs []models.Registration) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"ID", "Timestamp", "Name", "Phone", "Programme", "Status", "Remark", "Time In"}); err != nil {
		return nil, err
	}
	for _, r := range regs {
		timeIn := ""
		if r.TimeIn != nil {
			timeIn = r.TimeIn.Format(time.RFC3339)
		}
		row := []string{
			r.ID,
			r.Timestamp.Format(time.RFC3339),
			r.StudentName,
			r.PhoneNumber,
			r.Programme,
			r.Status,
			r.Remark,
			timeIn,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ExportFilename derives the download filename from the event name.
func ExportFilename(eventName, ext string) string {
	name := unsafeFilename.ReplaceAllString(eventName, "_")
	return fmt.Sprintf("%s_%s.%s", name, time.Now().Format("2006-01-02"), ext)
}

// QRDataURL encodes the registration page URL as a PNG data URL sized
// for the dashboard scan panel.
func QRDataURL(url string) (string, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, 300)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
