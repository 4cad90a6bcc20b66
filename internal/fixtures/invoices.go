// Package fixtures generates invoice-like files for tests.
package fixtures

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
)

// InvoiceJPEG renders a fake invoice page as JPEG, at least minBytes long.
func InvoiceJPEG(minBytes int) []byte {
	var data []byte
	for noise := 32; noise <= 288; noise += 32 {
		data = encodeJPEG(invoicePage(noise), 90)
		if len(data) >= minBytes {
			break
		}
	}
	return data
}

// InvoicePNG renders a small fake invoice page as PNG.
func InvoicePNG() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, invoicePage(16)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// InvoicePDF returns a minimal single-page PDF with a total line.
func InvoicePDF() []byte {
	stream := "BT /F1 12 Tf 72 720 Td (INVOICE 0042  Total: $45.00) Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// CorruptedJPEG keeps the JPEG header but garbles the body.
func CorruptedJPEG() []byte {
	valid := InvoiceJPEG(0)
	corrupted := bytes.Clone(valid)
	for i := len(corrupted) / 4; i < len(corrupted)*3/4; i++ {
		corrupted[i] = 0xFF
	}
	return corrupted
}

// invoicePage draws table rules and a noisy logo block of side logo pixels.
// The noise is seeded so output is stable between runs.
func invoicePage(logo int) *image.RGBA {
	width, height := 320, 420
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	// line items
	for row := 140; row < 360; row += 24 {
		for x := 20; x < width-20; x++ {
			img.Set(x, row, color.RGBA{40, 40, 40, 255})
		}
	}
	// total box
	for x := 180; x < width-20; x++ {
		img.Set(x, 372, color.RGBA{0, 0, 0, 255})
		img.Set(x, 400, color.RGBA{0, 0, 0, 255})
	}

	rnd := rand.New(rand.NewSource(42))
	if logo > width-40 {
		logo = width - 40
	}
	for y := 20; y < 20+logo && y < height; y++ {
		for x := 20; x < 20+logo; x++ {
			img.Set(x, y, color.RGBA{uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), 255})
		}
	}
	return img
}

func encodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
