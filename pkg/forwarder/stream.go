package forwarder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// StreamSink is where a streamed upstream response is relayed: typically
// the caller's http.ResponseWriter, but abstracted so tests don't need a
// live HTTP round trip.
type StreamSink interface {
	WriteHeader(statusCode int, header http.Header)
	Write(p []byte) (int, error)
	Flush()
}

// Stream performs a single-attempt forward and pipes the upstream response
// body to sink byte-for-byte as it arrives, flushing status and headers
// before the first body byte. Streaming requests are never retried once
// bytes have started flowing; ctx cancellation (downstream
// disconnect) aborts the upstream request promptly via errgroup's shared
// context.
func (f *Forwarder) Stream(ctx context.Context, req Request, sink StreamSink) error {
	upstream, err := f.BuildUpstreamRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(upstream)
	if err != nil {
		return fmt.Errorf("forwarder: streaming request failed: %w", err)
	}
	defer resp.Body.Close()

	header := resp.Header.Clone()
	for name := range droppedResponseHeaders {
		header.Del(name)
	}
	sink.WriteHeader(resp.StatusCode, header)
	sink.Flush()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reader := bufio.NewReaderSize(resp.Body, 4096)
		buf := make([]byte, 4096)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			n, rerr := reader.Read(buf)
			if n > 0 {
				if _, werr := sink.Write(buf[:n]); werr != nil {
					return fmt.Errorf("forwarder: writing to downstream: %w", werr)
				}
				sink.Flush()
			}
			if rerr != nil {
				if errors.Is(rerr, io.EOF) {
					return nil
				}
				return fmt.Errorf("forwarder: reading upstream stream: %w", rerr)
			}
		}
	})

	return g.Wait()
}
