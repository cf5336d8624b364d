// Package storage provides the optional persistence layer.
//
// It currently supports:
//   - Delivery log appends (per-recipient batch outcomes)
//   - Send marks (when a recipient was last messaged, used by
//     scheduled batches to skip recent recipients)
package storage
