package jobs

import (
	"context"

	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/rs/zerolog/log"
)

// ReconcileJob promotes queued items to sent once the platform queue has
// picked them up.
type ReconcileJob struct {
	dispatch service.DispatchService
}

func NewReconcileJob(dispatch service.DispatchService) *ReconcileJob {
	return &ReconcileJob{dispatch: dispatch}
}

func (j *ReconcileJob) Name() string { return "queue_reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	promoted, err := j.dispatch.Reconcile(ctx)
	if err != nil {
		return err
	}
	if promoted > 0 {
		log.Info().Int("promoted", promoted).Msg("reconciled queued items")
	}
	return nil
}
