// Package history keeps a bounded, process-local record of requests and how
// they moved through the pipeline. It is fed from the controller's
// transition and completion hooks and read by front-ends.
//
// Records are not persisted; a restart starts with an empty history.
package history
