// Package banner prints the startup banner with the LAN join URL.
package banner

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

const rule = "=================================================="

// JoinURL builds the URL a phone should open for the given listen address.
// Unspecified hosts are replaced with lanIP, or localhost when lanIP is empty.
func JoinURL(listenAddr, lanIP string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host, port = listenAddr, ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = lanIP
	}
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		return "http://" + host
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Port extracts the numeric port from a listen address.
func Port(listenAddr string) (int, error) {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

// LANAddress returns the first non-loopback IPv4 address of this machine.
func LANAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

// Print writes the banner to w. When withQR is set the join URL is also
// rendered as a terminal QR code; a QR failure falls back to text only.
func Print(w io.Writer, joinURL string, withQR bool) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "  OpenController - Virtual Xbox Controller")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Open on your phone: %s\n", joinURL)
	fmt.Fprintln(w)

	if withQR {
		qr, err := qrcode.New(joinURL, qrcode.Medium)
		if err != nil {
			fmt.Fprintf(w, "  (QR code unavailable: %v)\n\n", err)
		} else {
			for _, line := range strings.Split(strings.TrimRight(qr.ToSmallString(false), "\n"), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w, "  Press Ctrl+C to stop")
	fmt.Fprintln(w)
}
