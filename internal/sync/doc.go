// Package sync reconciles the configured documentation sources with their
// upstream.
//
// # Engine
//
// Engine fetches sources through a sources.ContentFetcher, compares the content
// fingerprint with the one held by the metadata store, and records created,
// updated, and deleted changes. Changed content is written to the content
// cache under storage.ContentKey(id).
//
//   - SyncOne syncs a single source.
//   - SyncAll syncs every source, or those in the given categories, with
//     bounded parallelism. Per-source failures are reported in the BatchResult
//     and never abort the batch. Only persistence failures are returned as errors.
//
// At most one fetch per source id is in flight process-wide. A caller that
// asks for a source already being fetched joins that fetch and shares its
// outcome.
//
// When an UpstreamProbe is configured, a full non-forced SyncAll first compares
// the probe fingerprint with the stored one and skips per-source fetches when
// nothing changed. The probe is an optimization only; probe failures fall
// back to a full sync.
//
// # Coordinator
//
// The sync/coordinator subpackage drives SyncAll on a timer. See its package
// documentation for scheduling rules.
package sync
