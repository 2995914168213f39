/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"time"

	"github.com/suparena/genericstore/storagemodels"
)

// Stream drains rs on a background goroutine and delivers the records on a
// buffered channel. A fetch error is sent as the final result. The channel
// is closed when rs is exhausted or ctx is done. rs must not be used by the
// caller while the stream runs.
func Stream(ctx context.Context, rs ResultSet, opts ...storagemodels.StreamOption) <-chan storagemodels.StreamResult {
	options := storagemodels.DefaultStreamOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.BufferSize < 0 {
		options.BufferSize = 0
	}

	resultCh := make(chan storagemodels.StreamResult, options.BufferSize)
	go streamWorker(ctx, rs, options, resultCh)
	return resultCh
}

func streamWorker(ctx context.Context, rs ResultSet, options storagemodels.StreamOptions, resultCh chan<- storagemodels.StreamResult) {
	defer close(resultCh)

	var index int64
	startTime := time.Now()

	reportProgress := func(done bool) {
		if options.ProgressHandler == nil {
			return
		}
		progress := storagemodels.StreamProgress{
			ItemsProcessed: index,
			StartTime:      startTime,
			Done:           done,
		}
		if elapsed := time.Since(startTime).Seconds(); elapsed > 0 {
			progress.CurrentRate = float64(index) / elapsed
		}
		options.ProgressHandler(progress)
	}

	send := func(res storagemodels.StreamResult) bool {
		select {
		case <-ctx.Done():
			return false
		case resultCh <- res:
			return true
		}
	}

	for {
		ok, err := rs.HasNext(ctx)
		if err == nil && ok {
			var rec storagemodels.Record
			rec, err = rs.Next(ctx)
			if err == nil {
				if !send(storagemodels.StreamResult{
					Record: rec,
					Meta:   storagemodels.StreamMeta{Index: index, Timestamp: time.Now()},
				}) {
					return
				}
				index++
				if options.ProgressInterval > 0 && index%options.ProgressInterval == 0 {
					reportProgress(false)
				}
				continue
			}
		}
		if err != nil {
			send(storagemodels.StreamResult{
				Error: err,
				Meta:  storagemodels.StreamMeta{Index: index, Timestamp: time.Now()},
			})
			return
		}
		reportProgress(true)
		return
	}
}
