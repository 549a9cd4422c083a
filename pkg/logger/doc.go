// Package logger builds configured slog.Logger instances with support for
// extracting request-scoped attributes from context.
//
// The factory produces JSON output at info level by default; development
// setups switch to text/debug via WithDevelopment. Context extractors run on
// every record, so values like the tenant id resolved by the tenantdb
// middleware appear on all logs emitted under that request's context:
//
//	log := logger.New(
//		logger.WithContextExtractors(tenantdb.LoggerExtractor()),
//	)
package logger
