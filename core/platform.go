package core

import (
	"fmt"
	"strings"
)

type PlatformType uint8

const (
	PlatformTypeSGX PlatformType = iota + 1
	PlatformTypeSEV
)

// Fixed attestation field sizes per platform.
const (
	SGXMeasurementSize = 32
	SGXSignatureSize   = 64
	SEVMeasurementSize = 48
	SEVSignatureSize   = 512
)

func (p PlatformType) Valid() bool {
	return p == PlatformTypeSGX || p == PlatformTypeSEV
}

func (p PlatformType) String() string {
	switch p {
	case PlatformTypeSGX:
		return "sgx"
	case PlatformTypeSEV:
		return "sev"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// MeasurementSize returns the fixed measurement length, or 0 for an unknown platform.
func (p PlatformType) MeasurementSize() int {
	switch p {
	case PlatformTypeSGX:
		return SGXMeasurementSize
	case PlatformTypeSEV:
		return SEVMeasurementSize
	default:
		return 0
	}
}

// SignatureSize returns the fixed signature length, or 0 for an unknown platform.
func (p PlatformType) SignatureSize() int {
	switch p {
	case PlatformTypeSGX:
		return SGXSignatureSize
	case PlatformTypeSEV:
		return SEVSignatureSize
	default:
		return 0
	}
}

func (p PlatformType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PlatformType) UnmarshalText(b []byte) error {
	parsed, err := ParsePlatform(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func ParsePlatform(s string) (PlatformType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sgx":
		return PlatformTypeSGX, nil
	case "sev":
		return PlatformTypeSEV, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
}
