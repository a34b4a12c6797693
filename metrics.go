// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package autocomplete

import "expvar"

// connMetrics record transport and connection activity counters.
type connMetrics struct {
	msgRecv            expvar.Int
	msgSent            expvar.Int
	msgDropped         expvar.Int // received after the local side closed
	requestsIn         expvar.Int // number of inbound requests received
	requestsInErr      expvar.Int // number of inbound requests answered with an error
	requestsOut        expvar.Int // number of outbound requests initiated
	requestsOutErr     expvar.Int // number of outbound requests that could not be sent
	responsesUnmatched expvar.Int
	requestsPending    expvar.Int // outbound

	emap *expvar.Map
}

var rootMetrics = newConnMetrics()

func newConnMetrics() *connMetrics {
	cm := &connMetrics{emap: new(expvar.Map)}
	cm.emap.Set("messages_received", &cm.msgRecv)
	cm.emap.Set("messages_sent", &cm.msgSent)
	cm.emap.Set("messages_dropped", &cm.msgDropped)
	cm.emap.Set("requests_in", &cm.requestsIn)
	cm.emap.Set("requests_in_failed", &cm.requestsInErr)
	cm.emap.Set("requests_out", &cm.requestsOut)
	cm.emap.Set("requests_out_failed", &cm.requestsOutErr)
	cm.emap.Set("responses_unmatched", &cm.responsesUnmatched)
	cm.emap.Set("requests_pending", &cm.requestsPending)
	return cm
}

// Metrics returns a metrics map shared by all transports and connections in
// the process. It is safe for the caller to add, update, and remove entries
// in the map.
func Metrics() *expvar.Map { return rootMetrics.emap }
