package env

import (
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	ethAddressPattern = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")
	privateKeyPattern = regexp.MustCompile("^[0-9a-fA-F]{64}$")
)

func IsEmpty(value string) bool {
	return strings.TrimSpace(value) == ""
}

// Ethereum Address
func IsValidEthAddress(address string) bool {
	return ethAddressPattern.MatchString(address)
}

// ECDSA Private Key, with or without 0x prefix
func IsValidPrivateKey(privateKey string) bool {
	return privateKeyPattern.MatchString(strings.TrimPrefix(privateKey, "0x"))
}

func IsValidPort(port string) bool {
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}

// IsValidURL accepts absolute http(s) URLs with a host. Paths and queries are allowed
// since hosted RPC endpoints carry API keys in them.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() == "" {
		return false
	}
	if port := u.Port(); port != "" && !IsValidPort(port) {
		return false
	}
	return true
}

// IsValidListenAddress accepts host:port or :port.
func IsValidListenAddress(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		return false
	}
	return IsValidPort(port)
}
