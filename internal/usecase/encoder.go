package usecase

import "strings"

// EncodeCommand normalizes outbound user text into the wire format the
// firmware's command interpreter expects: every logical line terminated
// with \r\n, whatever terminator style the input used. The four inputs
// "ping", "ping\n", "ping\r" and "ping\r\n" all encode identically.
func EncodeCommand(input string) []byte {
	normalized := strings.ReplaceAll(input, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	if !strings.HasSuffix(normalized, "\n") {
		normalized += "\n"
	}
	return []byte(strings.ReplaceAll(normalized, "\n", "\r\n"))
}
