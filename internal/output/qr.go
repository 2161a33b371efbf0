package output

import (
	"io"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// RenderQR draws data as a half-block QR code when w is a terminal and
// reports whether anything was drawn. Low error correction is enough for
// addresses.
func RenderQR(w io.Writer, data string) bool {
	if !isTerminal(w) {
		return false
	}
	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          qr.L,
		Writer:         w,
		QuietZone:      1,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
	return true
}
