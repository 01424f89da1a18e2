package main

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/caffeineduck/plxrun/controller"
	"github.com/caffeineduck/plxrun/executor"
	"github.com/caffeineduck/plxrun/history"
	"github.com/caffeineduck/plxrun/language/protolex"
	"github.com/caffeineduck/plxrun/output"
)

// session is one runtime handle, its controller and the optional history
// store, built from configuration.
type session struct {
	handle *executor.Handle
	ctrl   *controller.Controller
	store  *history.Store
}

// openSession wires a controller. The runtime is not started.
func (a *app) openSession(opts ...controller.Option) (*session, error) {
	execOpts := append(a.cfg.ExecutorOptions(), executor.WithLogger(a.logger.Named("executor")))
	h := executor.New(protolex.New(a.cfg.Runtime.Module), execOpts...)

	s := &session{handle: h}

	ctrlOpts := []controller.Option{
		controller.WithLogger(a.logger.Named("controller")),
		controller.WithProgramPath(a.cfg.ProgramPath),
	}
	if a.cfg.History.Enabled {
		store, err := history.Open(a.cfg.History.Path, a.logger.Named("history"))
		if err != nil {
			h.Close()
			return nil, err
		}
		s.store = store
		ctrlOpts = append(ctrlOpts, controller.WithRecorder(store))
	}

	s.ctrl = controller.New(h, append(ctrlOpts, opts...)...)
	return s, nil
}

func (s *session) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	errs = append(errs, s.handle.Close())
	return errors.Join(errs...)
}

// printRecords writes Normal records to stdout and everything else to stderr.
func printRecords(stdout, stderr io.Writer, records []output.Record) {
	for _, r := range records {
		if r.Channel == output.Normal {
			fmt.Fprint(stdout, r.Text)
		} else {
			fmt.Fprint(stderr, r.Text)
		}
	}
}

func logReport(logger *zap.Logger, r *controller.Report) {
	logger.Info("run finished",
		zap.String("run_id", r.ID),
		zap.Stringer("outcome", r.Outcome),
		zap.Uint32("exit_code", r.ExitCode),
		zap.Duration("elapsed", r.Duration),
	)
}
