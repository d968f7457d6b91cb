// Package storage persists the execution history.
//
// Records are partitioned by calendar day. Two drivers exist:
//   - "file": one JSON Lines file per day (logs/YYYY-MM-DD.jsonl), archived
//     partitions move to logs/archive/
//   - "sqlite": a single database file with a day column and an archive table
//
// The package also owns WriteFileAtomic, used by the config and task stores.
package storage
