// Package scheduler triggers periodic runs from a cron expression or a fixed
// interval. It only triggers: overlap between runs is resolved by the job.
package scheduler
