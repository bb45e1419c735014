package deploy

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultConcurrency is the number of files copied at once when the user
// doesn't configure it.
const DefaultConcurrency = 5

// Putter copies a local file to the remote host.
type Putter interface {
	Put(ctx context.Context, localPath, remotePath string) error
}

// ProgressFunc is called after each copy attempt. err is nil if the copy
// succeeded.
type ProgressFunc func(record ChangeRecord, err error)

type transferResult struct {
	index int
	err   error
}

// Transfer copies the records to the remote host, with at most `limit` copies
// in flight. A failed copy doesn't affect the others. onProgress is called
// from the calling goroutine in the order that the copies complete.
//
// The returned Result contains a log line per record, and Succeeded is true if
// every copy succeeded.
func Transfer(ctx context.Context, putter Putter, records []ChangeRecord,
	limit int, onProgress ProgressFunc) Result {

	if limit < 1 {
		limit = DefaultConcurrency
	}

	numWorkers := limit
	if len(records) < numWorkers {
		numWorkers = len(records)
	}

	// Start the transfer workers.
	var wg sync.WaitGroup
	toTransfer := make(chan int, numWorkers*2)
	results := make(chan transferResult, numWorkers)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range toTransfer {
				r := records[idx]
				results <- transferResult{
					index: idx,
					err:   put(ctx, putter, r),
				}
			}
		}()
	}

	// Feed the workers in submission order.
	go func() {
		for i := range records {
			toTransfer <- i
		}
		close(toTransfer)

		wg.Wait()
		close(results)
	}()

	outcomes := make([]TransferOutcome, len(records))
	var logLines []string
	for res := range results {
		r := records[res.index]
		outcome := TransferOutcome{
			LocalPath:  r.LocalPath,
			RemotePath: r.RemotePath,
			Succeeded:  res.err == nil,
		}
		if res.err != nil {
			outcome.Error = res.err.Error()
		}
		outcomes[res.index] = outcome
		logLines = append(logLines, outcome.logLine())

		if onProgress != nil {
			onProgress(r, res.err)
		}
	}

	result := Result{Attempted: len(records), Log: logLines}
	for _, outcome := range outcomes {
		if !outcome.Succeeded {
			result.Failed = append(result.Failed, outcome)
		}
	}
	result.Succeeded = len(result.Failed) == 0
	return result
}

// put copies a single record. A panicking Putter fails the record rather
// than crashing the process, since it runs outside of the caller's goroutine.
func put(ctx context.Context, putter Putter, r ChangeRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.WithField("path", r.LocalPath).WithField("stack", string(debug.Stack())).
				Debug("Recovered from panic while copying file")
			err = fmt.Errorf("copy panicked: %v", p)
		}
	}()
	return putter.Put(ctx, r.LocalPath, r.RemotePath)
}

func (outcome TransferOutcome) logLine() string {
	if outcome.Succeeded {
		return fmt.Sprintf("SUCCESS: %s -> %s", outcome.LocalPath, outcome.RemotePath)
	}
	return fmt.Sprintf("FAILED: %s -> %s: %s", outcome.LocalPath, outcome.RemotePath, outcome.Error)
}
