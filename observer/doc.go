// Package observer provides sqlkit observers that log statements and
// export Prometheus metrics.
//
//	conn, err := sqlkit.Open(ctx, cfg,
//		sqlkit.WithObserver(observer.NewLog(logger), sqlkit.EventAll),
//		sqlkit.WithObserver(metrics, sqlkit.EventQuery|sqlkit.EventException),
//	)
package observer
