// Package executor hosts the embedded Protolex interpreter on a WebAssembly
// runtime and mediates every interaction with it.
//
// # Overview
//
// A [Handle] owns one wazero runtime and one compiled interpreter module. It
// is initialized exactly once; after that, each call to [Handle.Invoke]
// instantiates a fresh guest from the compiled module, mounts the handle's
// [VFS] at "/" and runs the module's entry point with the program path as
// its only argument.
//
// # Basic Usage
//
//	h := executor.New(protolex.New("protolex.wasm"))
//	defer h.Close()
//
//	err := h.Initialize(ctx, executor.Callbacks{
//	    Stdout: func(line string) { fmt.Print(line) },
//	    Stderr: func(line string) { fmt.Fprint(os.Stderr, line) },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	h.StageProgram("/program.plx", []byte(`io.write(io.stdout, "hello\n")`))
//	code, err := h.Invoke(ctx, "/program.plx")
//
// # Output
//
// Output callbacks are registered once, at initialization, and serve every
// later invocation. Guest output is split into lines; each complete line,
// newline included, is delivered as one callback. A trailing partial line is
// delivered when the invocation ends.
//
// # Failures
//
// Errors wrap one of [ErrInitializationFailed], [ErrStagingFailed] or
// [ErrExecutionFailed]. A program that exits with a non-zero status is not a
// failure: the interpreter reports its own errors on stderr.
package executor
