// Package sources describes the documentation sources the cache tracks and
// the collaborators that read them from upstream.
//
// Architecture:
//   - Registry: the static, ordered list of SourceConfig entries loaded at startup
//   - ContentFetcher: returns the current bytes and fingerprint of one source
//   - UpstreamProbe: returns a cheap top-level fingerprint used to skip a batch
//     sync when nothing upstream has moved
//   - Watcher: turns filesystem notifications for file upstreams into per-source
//     change callbacks
//
// Current implementations:
//   - HTTPFetcher: GET <baseURL>/<path> with conditional requests and retries
//   - FileFetcher: reads <root>/<path> from local disk
//   - GitProbe: resolves a ref on a git remote without cloning (ls-remote)
//   - HTTPProbe: hashes a manifest document
package sources
