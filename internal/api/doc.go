// Package api exposes the row queue over HTTP: fetching the next pending row,
// marking rows done, streaming referenced files, and reporting progress.
package api
