// Package domain holds the core types of the campaign progression engine:
// campaigns and their mission dependency graphs, per-participant progression
// records, rank ladders, and competency grants.
package domain
