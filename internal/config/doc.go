// Package config loads the pipeline settings file.
//
// The file is a flat JSON (or YAML) object. Keys prefixed "scheduler:"
// bind to SchedulerConfig, keys prefixed "pipeline:" bind to
// PipelineConfig, and unprefixed keys are store connection settings.
// Every document is validated against an embedded CUE schema before
// binding. Keys the schema does not name are reported and ignored.
//
// Example:
//
//	{
//	  "graph_server": "data/petal.db",
//	  "scheduler:batch_size": 50,
//	  "pipeline:reload_time": 30,
//	  "pipeline:blacklist": ["AirfoilCreator"]
//	}
package config
