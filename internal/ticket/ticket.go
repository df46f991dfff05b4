// Package ticket renders a registration as a scannable QR image and a
// printable one-page PDF. The QR payload is the ticket code itself, the
// same string door staff submit to check-in.
package ticket

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/kirinyoku/campusgo/internal/domain"
	qrcode "github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

// QR returns a PNG of the ticket code. size is the image width in pixels;
// values below 64 fall back to the default.
func QR(code string, size int) ([]byte, error) {
	const op = "ticket.QR"

	if size < 64 {
		size = defaultQRSize
	}

	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return png, nil
}

// PDF renders a one-page A4 ticket for reg at ev with the QR embedded.
func PDF(reg domain.Registration, ev domain.Event) ([]byte, error) {
	const op = "ticket.PDF"

	png, err := QR(reg.Code, defaultQRSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 22)
	pdf.Cell(0, 15, "EVENT TICKET")
	pdf.Ln(20)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(8)

	top := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, top, 120, 55, "F")

	pdf.SetXY(20, top+7)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(110, 7, tr(ev.Title), "", "L", false)
	pdf.SetX(20)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, "Starts: "+ev.StartDate.UTC().Format("Mon, Jan 2, 2006 15:04 MST"))
	pdf.Ln(6)
	pdf.SetX(20)
	pdf.Cell(0, 8, "Ends: "+ev.EndDate.UTC().Format("Mon, Jan 2, 2006 15:04 MST"))
	pdf.Ln(6)
	pdf.SetX(20)
	pdf.Cell(0, 8, "Registered: "+reg.RegisteredAt.UTC().Format(time.DateOnly))
	pdf.Ln(6)
	pdf.SetX(20)
	pdf.Cell(0, 8, "Ticket: "+reg.ID.String())

	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(png))
	pdf.ImageOptions("qr", 145, top+5, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(top + 63)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.Cell(0, 6, "Show this QR code at the door. Check-in opens one hour before the start.")
	pdf.Ln(8)

	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, reg.Code, "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buf.Bytes(), nil
}
