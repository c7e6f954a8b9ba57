package core

import (
	"encoding/binary"

	"github.com/ava-labs/hypersdk/codec"
)

// SGXReport is the enclave identity carried by an SGX quote.
type SGXReport struct {
	MrEnclave  [32]byte `json:"mrenclave"`
	MrSigner   [32]byte `json:"mrsigner"`
	MiscSelect uint32   `json:"miscselect"`
	Attributes uint64   `json:"attributes"`
}

func (*SGXReport) Platform() PlatformType {
	return PlatformTypeSGX
}

// Digest is MRENCLAVE, the value an SGX attestation's measurement must carry.
func (r *SGXReport) Digest() []byte {
	return r.MrEnclave[:]
}

func (r *SGXReport) Marshal(p *codec.Packer) {
	p.PackFixedBytes(r.MrEnclave[:])
	p.PackFixedBytes(r.MrSigner[:])
	var misc [4]byte
	binary.BigEndian.PutUint32(misc[:], r.MiscSelect)
	p.PackFixedBytes(misc[:])
	p.PackUint64(r.Attributes)
}

func (r *SGXReport) Unmarshal(p *codec.Packer) {
	enclave := r.MrEnclave[:]
	p.UnpackFixedBytes(32, &enclave)
	signer := r.MrSigner[:]
	p.UnpackFixedBytes(32, &signer)
	misc := make([]byte, 4)
	p.UnpackFixedBytes(4, &misc)
	r.MiscSelect = binary.BigEndian.Uint32(misc)
	r.Attributes = p.UnpackUint64(false)
}
