package core

import (
	"github.com/ava-labs/hypersdk/codec"
)

// SEVReport is the launch identity carried by an SEV-SNP report.
type SEVReport struct {
	Measurement  [48]byte `json:"measurement"`
	PlatformInfo uint64   `json:"platform_info"`
	LaunchDigest [48]byte `json:"launch_digest"`
}

func (*SEVReport) Platform() PlatformType {
	return PlatformTypeSEV
}

func (r *SEVReport) Digest() []byte {
	return r.Measurement[:]
}

func (r *SEVReport) Marshal(p *codec.Packer) {
	p.PackFixedBytes(r.Measurement[:])
	p.PackUint64(r.PlatformInfo)
	p.PackFixedBytes(r.LaunchDigest[:])
}

func (r *SEVReport) Unmarshal(p *codec.Packer) {
	measurement := r.Measurement[:]
	p.UnpackFixedBytes(48, &measurement)
	r.PlatformInfo = p.UnpackUint64(false)
	digest := r.LaunchDigest[:]
	p.UnpackFixedBytes(48, &digest)
}
