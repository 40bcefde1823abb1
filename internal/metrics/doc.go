// Package metrics provides build metrics for fpmake.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics cost nothing unless configured:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	svc := build.NewService(deps).WithRecorder(recorder)
//
// A one-shot build exports through WriteTextfile (for the node_exporter
// textfile collector); watch mode serves HTTPHandler on metrics.listen.
package metrics
