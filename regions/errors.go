package regions

import (
	"fmt"

	"github.com/rhombus-tech/POC4/core"
)

var (
	ErrInvalidConfig   = fmt.Errorf("%w: invalid region client configuration", core.ErrConfiguration)
	ErrDuplicateRegion = fmt.Errorf("%w: duplicate region", core.ErrConfiguration)

	ErrUnknownRegion   = fmt.Errorf("%w: unknown region", core.ErrRegion)
	ErrMissingEndpoint = fmt.Errorf("%w: missing endpoint", core.ErrRegion)
	ErrMissingAuth     = fmt.Errorf("%w: missing auth token", core.ErrRegion)
	ErrUnhealthy       = fmt.Errorf("%w: region unhealthy", core.ErrRegion)
	ErrRejected        = fmt.Errorf("%w: request rejected", core.ErrRegion)
)
