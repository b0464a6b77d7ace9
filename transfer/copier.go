package transfer

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"tstream/internal"
	"tstream/stream"
)

// SaveGG copies in to out on the calling goroutine.
//
// Endpoints not yet opened are opened first; they are left open. It returns
// the number of bytes saved, or internal.SaveFailed with the cause when an
// endpoint fails to open, read or write. A callback returning false ends the
// copy early with the bytes saved so far and a nil error. Cancelling ctx
// ends it the same way but returns ctx.Err().
func SaveGG(ctx context.Context, in, out stream.GStream, config internal.TransferConfig) (int64, error) {
	return save(ctx, in, out, config)
}

// SaveGA copies a blocking input to a non-blocking output, waiting for every
// output completion. It must not be called from the output's dispatcher.
func SaveGA(ctx context.Context, in stream.GStream, out stream.AStream, config internal.TransferConfig) (int64, error) {
	return save(ctx, in, stream.Blocking(out), config)
}

// SaveUU resolves both URLs, copies, then closes the endpoints it created
func SaveUU(ctx context.Context, resolver *stream.Resolver, iurl, ourl string, config internal.TransferConfig) (int64, error) {
	in, err := resolver.Resolve(iurl, stream.ModeRead)
	if err != nil {
		return internal.SaveFailed, err
	}
	out, err := resolver.Resolve(ourl, stream.ModeWrite)
	if err != nil {
		return internal.SaveFailed, err
	}
	defer closeEndpoint(in)
	defer closeEndpoint(out)

	return save(ctx, in, out, config)
}

func save(ctx context.Context, in, out stream.GStream, config internal.TransferConfig) (int64, error) {
	s := newStep(config)
	log := internal.GetLogger().WithFields(logrus.Fields{
		"input":  in.URL(),
		"output": out.URL(),
	})

	if err := openEndpoint(in); err != nil {
		log.WithError(err).Debug("input failed to open")
		return internal.SaveFailed, err
	}
	if err := openEndpoint(out); err != nil {
		log.WithError(err).Debug("output failed to open")
		return internal.SaveFailed, err
	}

	s.begun()
	buf := make([]byte, s.chunk)
	for {
		n, err := in.Read(buf[:s.size()])
		if n > 0 {
			written, werr := out.Write(buf[:n])
			if werr != nil {
				log.WithError(werr).Debug("write failed")
				return internal.SaveFailed, wrapIO(internal.ErrWriteFailed, "write", werr)
			}
			if written != n {
				return internal.SaveFailed, internal.NewShortWriteError(written, n).WithURL(out.URL())
			}

			if serr := sleep(ctx, s.account(n)); serr != nil {
				log.Debugf("cancelled after %d bytes", s.saved)
				return s.saved, serr
			}

			saved, rate := s.progress()
			if !report(s.fn, saved, rate, s.priv) {
				log.Debugf("stopped by callback after %d bytes", saved)
				return saved, nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.WithError(err).Debug("read failed")
			return internal.SaveFailed, wrapIO(internal.ErrReadFailed, "read", err)
		}
		if n == 0 {
			// nothing read and no error: the input is exhausted
			break
		}
	}

	average := s.average()
	log.Debugf("saved %d bytes at %d B/s", s.saved, average)
	finish(s.fn, average, s.priv)
	return s.saved, nil
}

func openEndpoint(g stream.GStream) error {
	if g.IsOpened() {
		return nil
	}
	if err := g.Open(); err != nil {
		var transferErr *internal.TransferError
		if errors.As(err, &transferErr) {
			return err
		}
		return internal.NewOpenError(g.URL(), err)
	}
	return nil
}

func closeEndpoint(g stream.GStream) {
	if err := g.Close(); err != nil {
		internal.LogWarn("failed to close %s: %v", g.URL(), err)
	}
}

// wrapIO keeps endpoint errors that already carry a type
func wrapIO(errorType internal.ErrorType, op string, err error) error {
	var transferErr *internal.TransferError
	if errors.As(err, &transferErr) {
		return err
	}
	return internal.WrapTransferError(errorType, op, err)
}
