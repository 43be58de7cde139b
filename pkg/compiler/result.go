package compiler

// Messages reported when the compiler leaves no usable log.
const (
	MessageSucceeded     = "Compilation completed successfully"
	MessageUnknownFailed = "Compilation failed with unknown error"
)

// Result is the outcome of a compile job.
//
// A successful result carries CompiledFile, OutputPath and CompilerOutput; a
// failed one carries only Errors. The JSON shape is the public API contract.
type Result struct {
	Success        bool   `json:"success"`
	CompiledFile   string `json:"compiledFile,omitempty"`
	OutputPath     string `json:"outputPath,omitempty"`
	CompilerOutput string `json:"compilerOutput,omitempty"`
	Errors         string `json:"errors,omitempty"`
}

// Succeeded builds a success result.
func Succeeded(compiledFile, outputPath, compilerOutput string) *Result {
	if compilerOutput == "" {
		compilerOutput = MessageSucceeded
	}
	return &Result{
		Success:        true,
		CompiledFile:   compiledFile,
		OutputPath:     outputPath,
		CompilerOutput: compilerOutput,
	}
}

// Failed builds a failure result.
func Failed(errs string) *Result {
	if errs == "" {
		errs = MessageUnknownFailed
	}
	return &Result{Success: false, Errors: errs}
}
