// Package variant selects the schema, registry and rule tables of the active
// firmware family. It is the only package that branches on the family.
package variant

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownFamily = errors.New("unknown firmware family")

// FirmwareFamily is a closed set of supported firmware generations.
type FirmwareFamily string

const (
	Legacy  FirmwareFamily = "legacy"  // 0.5.x
	Current FirmwareFamily = "current" // 0.6.x
)

// Families lists every supported family.
var Families = []FirmwareFamily{Legacy, Current}

// schemaName is the one place a family is mapped to its data.
func (f FirmwareFamily) schemaName() (string, error) {
	switch f {
	case Legacy:
		return "odrive-0.5", nil
	case Current:
		return "odrive-0.6", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFamily, string(f))
}

func (f FirmwareFamily) Valid() bool {
	_, err := f.schemaName()
	return err == nil
}

func (f FirmwareFamily) String() string { return string(f) }

// ParseFamily accepts a family name or a firmware version such as "0.5.6"
// or "v0.6.10". Minor versions from 6 on belong to the current family.
func ParseFamily(s string) (FirmwareFamily, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if f := FirmwareFamily(s); f.Valid() {
		return f, nil
	}

	version := strings.TrimPrefix(s, "v")
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
	if major != 0 || minor < 5 {
		return "", fmt.Errorf("%w: unsupported firmware %s", ErrUnknownFamily, s)
	}
	if minor >= 6 {
		return Current, nil
	}
	return Legacy, nil
}
