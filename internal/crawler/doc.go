// Package crawler implements the resumable statute walker together with the
// retrying fetch and store decorators it is composed from.
package crawler
