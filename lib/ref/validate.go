// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// validateServer checks that a Matrix server name is minimally valid:
// non-empty, no control characters or whitespace, no Matrix sigils.
func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server name is empty")
	}
	for i := 0; i < len(server); i++ {
		c := server[i]
		if c <= ' ' || c == '@' || c == '#' || c == '!' || c == '$' {
			return fmt.Errorf("server name %q: invalid character at position %d", server, i)
		}
	}
	return nil
}

// parseMatrixID extracts localpart and server from @localpart:server.
func parseMatrixID(matrixID string) (localpart, server string, err error) {
	return parsePrefixedID(matrixID, '@', "Matrix user ID")
}

// parsePrefixedID extracts localpart and server from a Matrix identifier
// with the given sigil prefix (@ for user IDs, ! for room IDs).
func parsePrefixedID(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if len(identifier) < 2 || identifier[0] != sigil {
		return "", "", fmt.Errorf("invalid %s %q: must start with %c", kind, identifier, sigil)
	}
	colonIndex := strings.Index(identifier[1:], ":")
	if colonIndex < 0 {
		return "", "", fmt.Errorf("invalid %s %q: missing :server", kind, identifier)
	}
	colonIndex++ // adjust for [1:] offset
	if colonIndex < 2 {
		return "", "", fmt.Errorf("invalid %s %q: empty localpart", kind, identifier)
	}
	localpart = identifier[1:colonIndex]
	server = identifier[colonIndex+1:]
	if server == "" {
		return "", "", fmt.Errorf("invalid %s %q: empty server", kind, identifier)
	}
	return localpart, server, nil
}

// splitHostPort splits an optional ":port" suffix off a server name.
// IPv6 literals are bracketed ("[::1]:8448"), so a colon only delimits
// a port when everything after it is digits and, for bracketed hosts,
// when it follows the closing bracket.
func splitHostPort(server string) (host, port string) {
	if strings.HasPrefix(server, "[") {
		closeIndex := strings.IndexByte(server, ']')
		if closeIndex < 0 {
			return server, ""
		}
		host = server[:closeIndex+1]
		rest := server[closeIndex+1:]
		if strings.HasPrefix(rest, ":") {
			return host, rest[1:]
		}
		return server, ""
	}

	colonIndex := strings.LastIndexByte(server, ':')
	if colonIndex < 0 {
		return server, ""
	}
	candidate := server[colonIndex+1:]
	if candidate == "" {
		return server, ""
	}
	for i := 0; i < len(candidate); i++ {
		if candidate[i] < '0' || candidate[i] > '9' {
			return server, ""
		}
	}
	return server[:colonIndex], candidate
}
