// Package senderfilter matches senders against a configured ignore list
package senderfilter

import (
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// Checker reports whether a sender is on the ignore list.
// Entries are either full addresses or bare domains.
type Checker struct {
	addresses map[string]bool
	domains   map[string]bool
	logger    *zap.Logger
}

// NewChecker creates a new sender checker
func NewChecker(entries []string, logger *zap.Logger) *Checker {
	c := &Checker{
		addresses: make(map[string]bool),
		domains:   make(map[string]bool),
		logger:    logger,
	}

	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "@") {
			c.addresses[entry] = true
		} else {
			c.domains[strings.TrimPrefix(entry, "@")] = true
		}
	}

	if len(entries) > 0 && logger != nil {
		logger.Info("Initialized sender filter",
			zap.Int("addresses", len(c.addresses)),
			zap.Int("domains", len(c.domains)))
	}

	return c
}

// IsIgnored checks whether from, a bare address or "Name <address>", is ignored
func (c *Checker) IsIgnored(from string) bool {
	if len(c.addresses) == 0 && len(c.domains) == 0 {
		return false
	}

	address := strings.TrimSpace(from)
	if parsed, err := mail.ParseAddress(address); err == nil {
		address = parsed.Address
	}
	address = strings.ToLower(address)

	if c.addresses[address] {
		c.debug("Sender address is ignored", address)
		return true
	}

	// Extract domain from email address
	parts := strings.Split(address, "@")
	if len(parts) != 2 {
		return false
	}

	if c.domains[parts[1]] {
		c.debug("Sender domain is ignored", address)
		return true
	}

	return false
}

func (c *Checker) debug(msg, address string) {
	if c.logger != nil {
		c.logger.Debug(msg, zap.String("email", address))
	}
}
