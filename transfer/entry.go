package transfer

import (
	"tstream/internal"
	"tstream/stream"
)

// InitAA prepares an async transfer between two non-blocking endpoints.
// Completions run on the input's dispatcher. config.Func is required.
func InitAA(in, out stream.AStream, config internal.TransferConfig) (*Transfer, error) {
	return newTransfer(in, out, config, false, false)
}

// InitAG prepares an async transfer to a blocking output. Output calls run
// off the dispatcher and complete on the input's dispatcher.
func InitAG(in stream.AStream, out stream.GStream, config internal.TransferConfig) (*Transfer, error) {
	if in == nil || out == nil {
		return nil, internal.NewValidationError("endpoint", "input and output are required")
	}
	return newTransfer(in, stream.Async(out, in.Dispatcher()), config, false, false)
}

// InitUU resolves both URLs into endpoints bound to d. The transfer owns
// them and closes them on Exit.
func InitUU(resolver *stream.Resolver, d stream.Dispatcher, iurl, ourl string, config internal.TransferConfig) (*Transfer, error) {
	if config.Func == nil {
		return nil, internal.NewValidationError("func", "an async transfer needs a progress callback")
	}

	in, err := resolver.ResolveAsync(iurl, stream.ModeRead, d)
	if err != nil {
		return nil, err
	}
	out, err := resolver.ResolveAsync(ourl, stream.ModeWrite, d)
	if err != nil {
		in.Close()
		return nil, err
	}
	return newTransfer(in, out, config, true, true)
}
