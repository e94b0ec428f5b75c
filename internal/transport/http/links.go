package http

import (
	"net"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// JoinLinks builds the public join URL of a quiz. Without a configured
// public URL it falls back to this host's LAN address.
type JoinLinks struct {
	base string
}

func NewJoinLinks(publicURL, port string) *JoinLinks {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		base = "http://" + net.JoinHostPort(localIP(), port)
	}
	return &JoinLinks{base: base}
}

func (l *JoinLinks) Base() string { return l.base }

func (l *JoinLinks) JoinURL(quizID int64) string {
	return l.base + "/join/" + strconv.FormatInt(quizID, 10)
}

// QR renders the join URL as a PNG.
func (l *JoinLinks) QR(quizID int64) ([]byte, error) {
	return qrcode.Encode(l.JoinURL(quizID), qrcode.Medium, qrSize)
}

// localIP picks the address of the interface used for outbound traffic.
// No packet is sent; dialing UDP only selects a route.
func localIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
