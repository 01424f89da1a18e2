// Package plxrun runs Protolex programs inside a WebAssembly build of the
// Protolex interpreter.
//
// # Overview
//
// A [controller.Controller] owns one [executor.Handle]. Starting the
// controller compiles the interpreter once; every run then stages the source
// at /program.plx in an in-memory filesystem, instantiates a fresh module with
// that path as its argument, and captures stdout, stderr and failures in one
// ordered [output.Sink].
//
// # Basic Usage
//
//	h := executor.New(protolex.New("protolex.wasm"), executor.WithDiskCache())
//	defer h.Close()
//
//	ctrl := controller.New(h)
//	if err := ctrl.Start(ctx); err != nil {
//	    // ctrl.Output() holds the [exception] record; the controller is Faulted
//	}
//
//	report, err := ctrl.Run(ctx, `io.write(io.stdout, "hello\n")`)
//	if errors.Is(err, controller.ErrNotReady) {
//	    // another run is in progress
//	}
//	fmt.Print(output.Join(report.Records))
//
// # Recording Runs
//
//	store, _ := history.Open(history.DefaultPath(), logger)
//	ctrl := controller.New(h, controller.WithRecorder(store))
//
// See the [controller], [executor], [output], [history] and
// [language/protolex] packages for detailed API documentation, and
// cmd/plxrun for the command-line front ends.
package plxrun
