// Package control implements the request/reply channel between the
// orchestration manager and the interception loader. The two never share
// memory: the manager sends a typed Message over a Transport and waits, with a
// timeout on every call, for the loader's Responder to answer. Only two
// queries exist, CHECK_MANIFEST_READY and GET_MANIFEST.
//
// AwaitManifest layers a bounded fixed-interval retry on top of GET_MANIFEST
// and reports a tagged Outcome instead of mutating shared loop counters.
package control
