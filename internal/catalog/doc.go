// Package catalog enumerates the upstream units a batch pass considers.
//
// DandiSource pages through the DANDI archive; FileSource reads a YAML
// snapshot for offline runs. Sort gives the deterministic dispatch order.
package catalog
