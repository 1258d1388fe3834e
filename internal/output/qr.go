package output

import (
	"io"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// RenderLinkQR draws url as a QR code so a link can be opened from a phone
// wallet. Nothing is written unless w is a terminal.
func RenderLinkQR(w io.Writer, url string) bool {
	if url == "" || !IsTerminal(w) {
		return false
	}
	qrterminal.GenerateWithConfig(url, qrterminal.Config{
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
