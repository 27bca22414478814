// Package events fans video status changes out to observers.
//
// Every status change flows through a Stream. The stream hands each patch to
// its writer synchronously (the video status store), so a caller that
// returns from Publish can read its own write. Afterwards the stored record
// is offered to any number of asynchronous observers (NATS, logs, API
// pollers) through bounded channels; slow observers lose events rather than
// stall the pipeline.
package events
