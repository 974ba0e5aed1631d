package worker

import (
	"context"

	"github.com/ChuLiYu/fontmake-mp/pkg/types"
)

// Handler executes one job on behalf of a worker and always returns an
// outcome. workerID is the 1-based id of the calling worker.
type Handler func(ctx context.Context, job types.Job, workerID int) types.JobOutcome
