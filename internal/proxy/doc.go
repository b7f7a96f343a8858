// Package proxy is a local gateway to the photo library API. Local tools send
// unauthenticated requests; the gateway attaches a credential obtained through
// the access coordinator, and an upstream 401 is handled by the coordinator's
// single renew-and-retry.
package proxy
