// Package pdf renders printable permits
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// PermitDocument carries the already formatted values printed on a permit
type PermitDocument struct {
	PermitID        string
	EmployeeName    string
	VehicleNumber   string
	VehicleModel    string
	IssueDate       string
	ExpirationDate  string
	StatusLabel     string
	VerificationURL string
}

// Renderer draws permits. Without a UTF-8 font only Latin-1 text can be
// drawn, other characters are replaced.
type Renderer struct {
	FontPath string
}

const fontFamily = "permit"

// Render returns the PDF bytes of a one page permit with a QR code that
// encodes the verification URL
func (r Renderer) Render(doc PermitDocument) ([]byte, error) {
	png, err := qrcode.Encode(doc.VerificationURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	p := fpdf.New("P", "mm", "A4", "")
	p.SetTitle("Commute Permit "+doc.PermitID, true)
	family := "Helvetica"
	text := latinOnly
	if r.FontPath != "" {
		p.AddUTF8Font(fontFamily, "", r.FontPath)
		family = fontFamily
		text = func(s string) string { return s }
	}
	p.AddPage()

	p.SetFillColor(37, 99, 235)
	p.Rect(0, 0, 210, 30, "F")
	p.SetTextColor(255, 255, 255)
	p.SetFont(family, "", 22)
	p.SetXY(15, 10)
	p.CellFormat(180, 10, text("Vehicle Commute Permit"), "", 1, "C", false, 0, "")

	p.SetTextColor(17, 24, 39)
	p.SetFont(family, "", 12)
	p.SetXY(15, 42)
	rows := [][2]string{
		{"Permit No.", doc.PermitID},
		{"Employee", doc.EmployeeName},
		{"Vehicle number", doc.VehicleNumber},
		{"Vehicle", doc.VehicleModel},
		{"Issued", doc.IssueDate},
		{"Valid until", doc.ExpirationDate},
		{"Status", doc.StatusLabel},
	}
	for _, row := range rows {
		p.SetX(15)
		p.CellFormat(45, 10, text(row[0]), "B", 0, "L", false, 0, "")
		p.CellFormat(135, 10, text(row[1]), "B", 1, "L", false, 0, "")
	}

	p.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	p.ImageOptions("qr", 75, 130, 60, 60, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	p.SetFont(family, "", 9)
	p.SetXY(15, 195)
	p.CellFormat(180, 6, text("Scan the code or open the address below to verify this permit"), "", 1, "C", false, 0, "")
	p.SetX(15)
	p.CellFormat(180, 6, text(doc.VerificationURL), "", 1, "C", false, 0, doc.VerificationURL)

	var buf bytes.Buffer
	if err := p.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render permit pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var dateReplacer = strings.NewReplacer("年", "-", "月", "-", "日", "")

// latinOnly keeps text printable with the core fonts
func latinOnly(s string) string {
	s = dateReplacer.Replace(s)
	var b strings.Builder
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}
