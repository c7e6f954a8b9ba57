package accumulator

import (
	"github.com/rhombus-tech/POC4/core"
)

const (
	valuePrefix   = 0x0
	sizePrefix    = 0x1
	paramsPrefix  = 0x2
	witnessPrefix = 0x3
	recordPrefix  = 0x4
	latestPrefix  = 0x5
)

var (
	valueKey  = []byte{valuePrefix}
	sizeKey   = []byte{sizePrefix}
	paramsKey = []byte{paramsPrefix}
)

func executorKey(prefix byte, executor core.ExecutorID) []byte {
	k := make([]byte, 1+len(executor))
	k[0] = prefix
	copy(k[1:], executor[:])
	return k
}

func witnessKey(executor core.ExecutorID) []byte {
	return executorKey(witnessPrefix, executor)
}

func recordKey(executor core.ExecutorID) []byte {
	return executorKey(recordPrefix, executor)
}

// latestKey holds the last attestation registered for executor on platform.
func latestKey(executor core.ExecutorID, platform core.PlatformType) []byte {
	k := make([]byte, 2+len(executor))
	k[0] = latestPrefix
	k[1] = byte(platform)
	copy(k[2:], executor[:])
	return k
}
