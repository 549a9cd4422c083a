// Package identity carries verified request identity through the context
// and answers capability questions about roles.
//
// Token verification itself happens in the auth layer; this package starts
// where that layer ends. The auth middleware calls WithIdentity after
// validating a bearer token, and downstream consumers (notably the tenantdb
// resolution middleware) read the tenant claim back with
// TenantIDFromContext.
//
// The Checker interface keeps authorization policy out of the connection
// routing path: the middleware asks "may this role touch this tenant's
// data" and the answer comes from here, not from handler-level role checks
// scattered across routes.
package identity
