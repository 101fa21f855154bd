// Package redact turns detected entities into sanitized text. A Strategy
// converts one PII snippet into its replacement; the Rewriter splices
// replacements into the surrounding text and records an audit entry for
// every change it makes.
package redact

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy names accepted by ForName.
const (
	StrategyPlaceholder = "placeholder"
	StrategyMask        = "mask"
	StrategyRemove      = "remove"
	StrategyHash        = "hash"
	StrategyPartial     = "partial"
)

// Domain errors for the redact package.
var (
	ErrUnknownStrategy = errors.New("unknown redaction strategy")
)

// Strategy converts one PII snippet into its replacement text. Redact is
// total: it never fails, it only returns text.
type Strategy interface {
	// Name returns the strategy identifier (e.g. "placeholder", "hash").
	Name() string
	// Redact returns the replacement for one detected snippet. entityType
	// is the detection type (EMAIL, PHONE, ...) some strategies key on.
	Redact(snippet, entityType string) string
}

// Names returns the valid strategy names in a stable order.
func Names() []string {
	return []string{StrategyPlaceholder, StrategyMask, StrategyRemove, StrategyHash, StrategyPartial}
}

// ForName constructs a fresh strategy by exact name. Each call returns a
// new instance, so hash token caches are never shared between jobs.
func ForName(name string) (Strategy, error) {
	switch name {
	case StrategyPlaceholder:
		return placeholderStrategy{}, nil
	case StrategyMask:
		return maskStrategy{}, nil
	case StrategyRemove:
		return removeStrategy{}, nil
	case StrategyHash:
		return &hashStrategy{cache: make(map[string]string)}, nil
	case StrategyPartial:
		return partialStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w %q, valid strategies: %s", ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
}

// MustForName is ForName for strategies known at compile time. It panics
// on unknown names.
func MustForName(name string) Strategy {
	s, err := ForName(name)
	if err != nil {
		panic(fmt.Sprintf("redact.ForName: %v", err))
	}
	return s
}
