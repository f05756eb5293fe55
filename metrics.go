// Copyright (C) 2026 MicroTrends Ltd. All Rights Reserved.

package easypipes

import "expvar"

// pipeMetrics record activity counters shared by all instances.
type pipeMetrics struct {
	framesRead    expvar.Int
	framesSent    expvar.Int
	bytesRead     expvar.Int
	bytesSent     expvar.Int
	connects      expvar.Int // successful outbound connects
	connectErrors expvar.Int
	accepts       expvar.Int // successful inbound accepts
	acceptErrors  expvar.Int
	readErrors    expvar.Int
	sendErrors    expvar.Int
	sendDropped   expvar.Int // payloads not sent (guard timeout or no consumer)

	emap *expvar.Map
}

var metrics = newPipeMetrics()

func newPipeMetrics() *pipeMetrics {
	pm := &pipeMetrics{emap: new(expvar.Map)}
	pm.emap.Set("frames_read", &pm.framesRead)
	pm.emap.Set("frames_sent", &pm.framesSent)
	pm.emap.Set("bytes_read", &pm.bytesRead)
	pm.emap.Set("bytes_sent", &pm.bytesSent)
	pm.emap.Set("connects", &pm.connects)
	pm.emap.Set("connect_errors", &pm.connectErrors)
	pm.emap.Set("accepts", &pm.accepts)
	pm.emap.Set("accept_errors", &pm.acceptErrors)
	pm.emap.Set("read_errors", &pm.readErrors)
	pm.emap.Set("send_errors", &pm.sendErrors)
	pm.emap.Set("send_dropped", &pm.sendDropped)
	return pm
}

// Metrics returns the package metrics map. It is safe for the caller to add
// additional metrics to the map.
func Metrics() *expvar.Map { return metrics.emap }
