package server

import "github.com/VictoriaMetrics/metrics"

var (
	sessionsTotal      = metrics.NewCounter(`rtrd_server_sessions_total`)
	resetQueriesTotal  = metrics.NewCounter(`rtrd_server_reset_queries_total`)
	serialQueriesTotal = metrics.NewCounter(`rtrd_server_serial_queries_total`)
	notifiesSentTotal  = metrics.NewCounter(`rtrd_server_serial_notifies_total`)
	sessionErrors      = metrics.NewCounter(`rtrd_server_session_errors_total`)
)
